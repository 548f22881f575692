// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBindAttempt(t *testing.T) {
	before := testutil.ToFloat64(ListenerBindAttempts.WithLabelValues("test-secure", "address_in_use"))

	RecordBindAttempt("test-secure", "address_in_use")
	RecordBindAttempt("test-secure", "address_in_use")

	after := testutil.ToFloat64(ListenerBindAttempts.WithLabelValues("test-secure", "address_in_use"))
	if after-before != 2 {
		t.Errorf("bind attempts increased by %v, want 2", after-before)
	}
}

func TestRecordShutdownStep(t *testing.T) {
	tests := []struct {
		name   string
		step   string
		failed bool
		want   float64
	}{
		{"success does not count failure", "test-step-ok", false, 0},
		{"failure counted", "test-step-fail", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordShutdownStep(tt.step, 5*time.Millisecond, tt.failed)
			got := testutil.ToFloat64(ShutdownStepFailures.WithLabelValues(tt.step))
			if got != tt.want {
				t.Errorf("failures = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordWorkerExit(t *testing.T) {
	before := testutil.ToFloat64(WorkerExits.WithLabelValues("86", "clean_close"))
	RecordWorkerExit(86, 3*time.Second)
	after := testutil.ToFloat64(WorkerExits.WithLabelValues("86", "clean_close"))
	if after-before != 1 {
		t.Errorf("exits increased by %v, want 1", after-before)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/test", "200"))
	RecordHTTPRequest("GET", "/test", "200", 10*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/test", "200"))
	if after-before != 1 {
		t.Errorf("requests increased by %v, want 1", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(HTTPActiveRequests); got != before+1 {
		t.Errorf("active = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(HTTPActiveRequests); got != before {
		t.Errorf("active = %v, want %v", got, before)
	}
}

func TestSetBool(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_bool"})
	SetBool(g, true)
	if testutil.ToFloat64(g) != 1 {
		t.Error("SetBool(true) must set 1")
	}
	SetBool(g, false)
	if testutil.ToFloat64(g) != 0 {
		t.Error("SetBool(false) must set 0")
	}
}
