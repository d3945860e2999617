package handlers

import (
	"github.com/kiliankoe/threader/pkg/monitoring"
	"github.com/kiliankoe/threader/pkg/session"
)

type ReaderMetrics struct {
	*monitoring.SessionMetrics
}

func (m *ReaderMetrics) ObserveStart(platform, status string, s *session.Session) {
	if m == nil || m.SessionMetrics == nil {
		return
	}
	m.Started.WithLabelValues(platform, status).Inc()
	m.observeThread(platform, s)
}

func (m *ReaderMetrics) ObserveContinue(platform, status string, s *session.Session) {
	if m == nil || m.SessionMetrics == nil {
		return
	}
	m.Continued.WithLabelValues(platform, status).Inc()
	m.observeThread(platform, s)
}

func (m *ReaderMetrics) observeThread(platform string, s *session.Session) {
	if s == nil || s.Thread == nil {
		return
	}
	m.PostsAppended.WithLabelValues(platform).Add(float64(s.LastAddedCount))
	m.ThreadLength.WithLabelValues(platform).Observe(float64(len(s.Thread.Posts)))
}
