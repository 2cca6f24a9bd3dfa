package models

// CustodyStats aggregates workflow counters over a reporting period.
type CustodyStats struct {
	ActiveCustodies  int     `db:"active_custodies" json:"activeCustodies"`
	PendingApprovals int     `db:"pending_approvals" json:"pendingApprovals"`
	SLABreaches      int     `db:"sla_breaches" json:"slaBreaches"`
	ClosedThisPeriod int     `db:"closed_this_period" json:"closedThisPeriod"`
	AvgDurationDays  float64 `db:"avg_duration_days" json:"avgDurationDays"`
	SLACompliancePct float64 `db:"sla_compliance_pct" json:"slaCompliancePct"`
}
