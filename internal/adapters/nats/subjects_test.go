package natsadapter_test

import (
	"strings"
	"testing"

	natsadapter "github.com/samirrijal/loadgen/internal/adapters/nats"
)

func TestSubjectsMatchStreams(t *testing.T) {
	streams := natsadapter.Streams()
	bySubject := func(subject string) string {
		for _, s := range streams {
			for _, pattern := range s.Subjects {
				if strings.HasPrefix(subject, strings.TrimSuffix(pattern, ">")) {
					return s.Name
				}
			}
		}
		return ""
	}

	if got := bySubject(natsadapter.ResultSubject("run-1")); got != natsadapter.ResultsStream {
		t.Errorf("result subject captured by %q, want %q", got, natsadapter.ResultsStream)
	}
	if got := bySubject(natsadapter.SummarySubject("run-1")); got != natsadapter.RunsStream {
		t.Errorf("summary subject captured by %q, want %q", got, natsadapter.RunsStream)
	}
	if natsadapter.SummarySubject("run-1") != "loadtest.runs.run-1.summary" {
		t.Errorf("unexpected summary subject %q", natsadapter.SummarySubject("run-1"))
	}
}
