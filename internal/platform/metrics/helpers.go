package metrics

// Increment helpers tolerate a nil receiver so services can run without
// metrics wired (unit tests, tooling).

func (m *Metrics) IncApplicationsSubmitted() {
	if m == nil {
		return
	}
	m.ApplicationsSubmitted.Inc()
}

func (m *Metrics) IncDecisionsRecorded(decision string) {
	if m == nil {
		return
	}
	m.DecisionsRecorded.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncCertifications(result string) {
	if m == nil {
		return
	}
	m.Certifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncLedgerConfirmPolls() {
	if m == nil {
		return
	}
	m.LedgerConfirmPolls.Inc()
}

func (m *Metrics) IncTransfers(result string) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(result).Inc()
}

func (m *Metrics) IncDisputesRaised() {
	if m == nil {
		return
	}
	m.DisputesRaised.Inc()
}

func (m *Metrics) IncCasesClosed() {
	if m == nil {
		return
	}
	m.CasesClosed.Inc()
}

func (m *Metrics) IncVerifyRequests(valid bool) {
	if m == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.VerifyRequests.WithLabelValues(label).Inc()
}
