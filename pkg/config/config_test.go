package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
chunk_count: 8
memory_size: 1073741824
services: [Cell, Transaction]
index_enabled: true
address: "127.0.0.1:9090"
group_name: "default"
standalone: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.ChunkCount)
	assert.True(t, cfg.HasService(ServiceCell))
	assert.False(t, cfg.HasService(ServiceLSMTree))
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
chunk_count: 0
memory_size: 1073741824
services: [Cell]
address: "127.0.0.1:9090"
group_name: "default"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownService(t *testing.T) {
	path := writeConfig(t, `
chunk_count: 4
memory_size: 1073741824
services: [NotAService]
address: "127.0.0.1:9090"
group_name: "default"
standalone: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsMetaWithoutMembers(t *testing.T) {
	cfg := &ServerConfig{
		ChunkCount: 1, MemorySize: 1, Services: []ServiceKind{ServiceCell},
		Address: "127.0.0.1:9090", GroupName: "g", IsMeta: true,
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsStandaloneMeta(t *testing.T) {
	cfg := &ServerConfig{
		ChunkCount: 1, MemorySize: 1, Services: []ServiceKind{ServiceCell},
		Address: "127.0.0.1:9090", GroupName: "g",
		IsMeta: true, Standalone: true, MetaMembers: []string{"a"},
	}
	assert.Error(t, cfg.Validate())
}
