package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func TestUpstreamID(t *testing.T) {
	cases := map[string]string{
		"dispute_update:d-1:resolved":  "d-1",
		"dispute_update:q:42:appealed": "q:42",
		"support_reply:m1":             "m1",
		"system_message:conv:7:m2":     "conv:7:m2",
		"dispute_update:d-1":           "",
		"plain":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, UpstreamID(in), in)
	}
}

func TestUpstreamIDRoundTripsCandidateIDs(t *testing.T) {
	d := NewCandidate(TypeDisputeUpdate, DisputePayload{DisputeID: "q:42", Status: DisputeResolved}, "t", "m", testNow)
	assert.Equal(t, "q:42", UpstreamID(d.ID))

	s := NewCandidate(TypeSupportReply, SupportPayload{MessageID: "a:b"}, "t", "m", testNow)
	assert.Equal(t, "a:b", UpstreamID(s.ID))
}
