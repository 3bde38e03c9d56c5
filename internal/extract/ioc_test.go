package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilde-sec/threatsift/internal/models"
)

func iocsByType(iocs []*models.Ioc) map[models.IocType][]string {
	got := make(map[models.IocType][]string)
	for _, ioc := range iocs {
		got[ioc.Type] = append(got[ioc.Type], ioc.Value)
	}
	return got
}

func TestIocExtract(t *testing.T) {
	t.Parallel()

	e := NewIocExtractor()

	t.Run("public ip kept, private filtered", func(t *testing.T) {
		text := "C2 at 203.0.113.7 with staging on 10.0.0.5, 172.16.4.2, 192.168.1.1 and 127.0.0.1"
		got := iocsByType(e.Extract(text))
		assert.Equal(t, []string{"203.0.113.7"}, got[models.IocIP])
	})

	t.Run("sha256 hashes lowercased", func(t *testing.T) {
		hash := "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"
		got := iocsByType(e.Extract("dropper hash " + hash))
		require.Len(t, got[models.IocHash], 1)
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got[models.IocHash][0])
	})

	t.Run("emails filtered by common provider", func(t *testing.T) {
		text := "Contact recruiter@evil-corp.io or backup throwaway@gmail.com"
		got := iocsByType(e.Extract(text))
		assert.Equal(t, []string{"recruiter@evil-corp.io"}, got[models.IocEmail])
	})

	t.Run("domains with allowlist", func(t *testing.T) {
		text := "Payload staged on cdn.badcdn.net, writeup at github.com"
		got := iocsByType(e.Extract(text))
		assert.Contains(t, got[models.IocDomain], "cdn.badcdn.net")
		assert.NotContains(t, got[models.IocDomain], "github.com")
	})

	t.Run("dedup within one call", func(t *testing.T) {
		text := "198.51.100.9 then again 198.51.100.9"
		got := iocsByType(e.Extract(text))
		assert.Equal(t, []string{"198.51.100.9"}, got[models.IocIP])
	})

	t.Run("malformed octet rejected", func(t *testing.T) {
		got := iocsByType(e.Extract("version 300.1.2.999 is not an address"))
		assert.Empty(t, got[models.IocIP])
	})
}
