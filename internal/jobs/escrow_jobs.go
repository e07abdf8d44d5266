package jobs

// SendMilestoneReminders reminds milestone-plan guests of upcoming installments
func (jr *JobRunner) SendMilestoneReminders() {
	jr.runWithRecovery("SendMilestoneReminders", jr.escrow.SendMilestoneReminders)
}

// SendCheckInReminders emails guests who check in tomorrow
func (jr *JobRunner) SendCheckInReminders() {
	jr.runWithRecovery("SendCheckInReminders", jr.escrow.SendCheckInReminders)
}

// CompleteStays completes finished stays and releases their escrow
func (jr *JobRunner) CompleteStays() {
	jr.runWithRecovery("CompleteStays", jr.escrow.CompleteStays)
}

// ExpirePendingBookings cancels bookings left unpaid past the expiry window
func (jr *JobRunner) ExpirePendingBookings() {
	jr.runWithRecovery("ExpirePendingBookings", jr.escrow.ExpirePendingBookings)
}

func (jr *JobRunner) RetryPendingRefunds() {
	jr.runWithRecovery("RetryPendingRefunds", jr.escrow.RetryPendingRefunds)
}

func (jr *JobRunner) ExpirePromoCodes() {
	jr.runWithRecovery("ExpirePromoCodes", jr.escrow.ExpirePromoCodes)
}
