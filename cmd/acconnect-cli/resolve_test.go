package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "living_room", normalizeName("  Living Room "))
	assert.Equal(t, "living_room", normalizeName("living--room"))
	assert.Equal(t, "master_bed_room", normalizeName("Master - Bed room"))
}

func TestResolveNamedID(t *testing.T) {
	options := map[string]string{
		"Living Room": "AA:BB:CC:DD:EE:01",
		"Office":      "AA:BB:CC:DD:EE:02",
	}

	id, err := resolveNamedID("device", "living-room", options)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", id)

	_, err = resolveNamedID("device", "kitchen", options)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available: Living Room, Office")
}

func TestLooksLikeMAC(t *testing.T) {
	assert.True(t, looksLikeMAC("aa:bb:cc:dd:ee:ff"))
	assert.True(t, looksLikeMAC("AA-BB-CC-DD-EE-FF"))
	assert.False(t, looksLikeMAC("office"))
}

func TestDeviceRow(t *testing.T) {
	row := deviceRow(map[string]any{
		"name": "Office",
		"mac":  "AA:BB:CC:DD:EE:02",
		"state": map[string]any{
			"power":           "on",
			"mode":            "cool",
			"fanSpeed":        "",
			"temperature":     "22",
			"roomTemperature": 23.5,
		},
	})
	assert.Equal(t, []string{"Office", "AA:BB:CC:DD:EE:02", "on", "cool", "-", "22", "23.5"}, row)

	assert.Equal(t, []string{"-", "-", "-", "-", "-", "-", "-"}, deviceRow(nil))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	outputMode{}.table(&buf, [][]string{{"NAME", "MAC"}, {"Office", "AA"}})
	assert.Equal(t, "NAME    MAC\nOffice  AA\n", buf.String())
}
