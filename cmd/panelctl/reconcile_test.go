package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valtp/saas-platform/panel-service/internal/models"
)

func TestPrintReports(t *testing.T) {
	var buf bytes.Buffer
	printReports(&buf, []models.OrphanReport{
		{
			InstanceID:   "i-1",
			InstanceName: "S1",
			RemoteUsers:  3,
			Orphans: []models.OrphanUser{
				{ID: 7, Username: "leftover", Email: "leftover@valtp.net", CreatedAt: "2024-01-02T03:04:05+00:00"},
			},
		},
		{InstanceID: "i-2", InstanceName: "Broken", Orphans: []models.OrphanUser{}, Error: "remote error: 401"},
	})

	out := buf.String()
	assert.Contains(t, out, "S1 (i-1): 3 remote users, 1 orphaned")
	assert.Contains(t, out, "leftover@valtp.net")
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "error: remote error: 401")
}
