package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/cardlog/internal/model"
)

func TestCompile_Empty(t *testing.T) {
	f, err := Compile("   ")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match(model.LogRecord{}, false), "nil filter matches everything")
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile("user ==")
	assert.Error(t, err)

	_, err = Compile(`user`)
	assert.Error(t, err, "non-boolean result is rejected")

	_, err = Compile(`badge == "x"`)
	assert.Error(t, err, "unknown variable is rejected")
}

func TestMatch(t *testing.T) {
	alice := model.LogRecord{ID: 7, UID: "04A1", User: "alice", Time: "2026-10-18 09:00:00"}
	unknown := model.LogRecord{ID: 8, UID: "FFFF", User: "Unknown", Time: "2026-10-17 09:00:00"}

	tests := []struct {
		name  string
		src   string
		rec   model.LogRecord
		today bool
		want  bool
	}{
		{"user equality", `user == "alice"`, alice, false, true},
		{"user mismatch", `user == "alice"`, unknown, false, false},
		{"uid prefix", `uid startsWith "04"`, alice, false, true},
		{"today flag", `today`, alice, true, true},
		{"not today", `today`, unknown, false, false},
		{"id compare", `id > 7`, unknown, false, true},
		{"membership", `user in ["bob", "alice"]`, alice, false, true},
		{"time prefix", `time startsWith "2026-10-17"`, unknown, false, true},
		{"combined", `user != "Unknown" && today`, unknown, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(tt.rec, tt.today))
		})
	}
}
