package service

import "salonbook/internal/models"

// applyServicePrice snapshots the service price and recomputes the total.
func applyServicePrice(r *models.Reservation, price int64) {
	r.ServicePrice = price
	recomputeFinalPrice(r)
}

// recomputeFinalPrice keeps FinalPrice equal to the service price plus add-ons.
func recomputeFinalPrice(r *models.Reservation) {
	r.FinalPrice = r.ServicePrice + r.AddonsTotal()
}

// needsRepricing reports whether moving from prev to next must refresh prices
// from the current catalog.
func needsRepricing(prev, next models.Status, finalPrice int64) bool {
	if finalPrice != 0 {
		return false
	}
	fromOpen := prev == models.StatusDraft || prev == models.StatusPending
	toBooked := next == models.StatusConfirmed || next == models.StatusCompleted
	return fromOpen && toBooked
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
