package confkit_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtfchart/pkg/confkit"
)

func TestResolvePath(t *testing.T) {
	t.Setenv("CONFKIT_TEST_DIR", "/opt/chart")
	tests := []struct {
		name string
		base string
		file string
		want string
	}{
		{name: "absolute", base: "/base", file: "/etc/broker.yaml", want: "/etc/broker.yaml"},
		{name: "relative", base: "/base", file: "broker.yaml", want: "/base/broker.yaml"},
		{name: "env absolute", base: "/base", file: "$CONFKIT_TEST_DIR/broker.yaml", want: "/opt/chart/broker.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confkit.ResolvePath(tt.base, tt.file))
		})
	}
	assert.Equal(t, "/etc/chart", confkit.BaseDir("/etc/chart/chartd.yaml"))
}

func TestSectionHydrate(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		section := &confkit.Section[string]{}
		err := section.Hydrate("/base", func(string) (*string, error) {
			t.Fatal("loader must not run")
			return nil, nil
		})
		require.NoError(t, err)
		assert.False(t, section.Configured())
	})

	t.Run("loads relative file", func(t *testing.T) {
		section := &confkit.Section[string]{File: "broker.yaml"}
		value := "ok"
		err := section.Hydrate("/base", func(path string) (*string, error) {
			assert.Equal(t, "/base/broker.yaml", path)
			return &value, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "/base/broker.yaml", section.File)
		assert.Equal(t, "ok", *section.Value)
		assert.True(t, section.Configured())
	})

	t.Run("loader error", func(t *testing.T) {
		section := &confkit.Section[string]{File: "broker.yaml"}
		err := section.Hydrate("/base", func(string) (*string, error) {
			return nil, errors.New("boom")
		})
		assert.ErrorContains(t, err, "boom")
		assert.Nil(t, section.Value)
	})
}

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))

	dir, ok := confkit.FindUp(nested, "go.mod")
	require.True(t, ok)
	assert.Equal(t, root, dir)

	_, ok = confkit.FindUp(nested, "definitely-missing-marker")
	assert.False(t, ok)
}
