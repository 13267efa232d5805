package gate

// ComputeGate derives the active gate from the counters and thresholds.
// Precedence: broker account, broker threshold, email threshold, none.
func ComputeGate(s *SessionState, cfg Config) Gate {
	switch {
	case s.HasBrokerAccount:
		return GateNone
	case s.HasEmail && s.DrillsViewedAfterEmail > cfg.BrokerGateThreshold:
		return GateBroker
	case !s.HasEmail && s.DrillsViewed > cfg.EmailGateThreshold:
		return GateEmail
	default:
		return GateNone
	}
}

// RemainingViews returns the free distinct views left before the next gate,
// or Unlimited for broker users.
func RemainingViews(s *SessionState, cfg Config) int {
	switch {
	case s.HasBrokerAccount:
		return Unlimited
	case s.HasEmail:
		return max(0, cfg.BrokerGateThreshold-s.DrillsViewedAfterEmail)
	default:
		return max(0, cfg.EmailGateThreshold-s.DrillsViewed)
	}
}

// CurrentStage maps the flags to a funnel stage.
func CurrentStage(s *SessionState) Stage {
	switch {
	case s.HasBrokerAccount:
		return StageBrokerUser
	case s.HasEmail:
		return StageEmailUser
	default:
		return StageAnonymous
	}
}
