package usecase

import (
	"fmt"
	"log"
	"time"

	"mirror-backend/internal/domain"
	"mirror-backend/internal/infrastructure/mt5"
)

const failureCooldown = 5 * time.Minute

func (s *MirrorService) pushTokens() []string {
	if s.fcmClient == nil || !s.fcmClient.IsEnabled() || s.tokenRepo == nil {
		return nil
	}
	return s.tokenRepo.GetAllTokens()
}

func (s *MirrorService) notifyMirrorOpened(pair *domain.MirrorPair) {
	tokens := s.pushTokens()
	if len(tokens) == 0 {
		return
	}

	title := fmt.Sprintf("🔁 Reverse opened for %s", pair.Symbol)
	body := fmt.Sprintf("Original #%d -> Reverse #%d | Vol: %.2f",
		pair.OriginalTicket, pair.ReverseTicket, pair.ReverseVolume)

	data := map[string]string{
		"event":          "mirror_opened",
		"symbol":         pair.Symbol,
		"originalTicket": fmt.Sprintf("%d", pair.OriginalTicket),
		"reverseTicket":  fmt.Sprintf("%d", pair.ReverseTicket),
	}

	if err := s.fcmClient.SendMulticast(tokens, title, body, data); err != nil {
		log.Printf("Error sending open notification for original#%d: %v", pair.OriginalTicket, err)
	}
}

func (s *MirrorService) notifyMirrorClosed(pair *domain.MirrorPair) {
	tokens := s.pushTokens()
	if len(tokens) == 0 {
		return
	}

	title := fmt.Sprintf("✅ Reverse closed for %s", pair.Symbol)
	body := fmt.Sprintf("Original #%d | Reason: %s", pair.OriginalTicket, pair.CloseReason)
	if pair.ProfitLoss != nil {
		body = fmt.Sprintf("%s | P/L: %.2f", body, *pair.ProfitLoss)
	}

	data := map[string]string{
		"event":          "mirror_closed",
		"symbol":         pair.Symbol,
		"originalTicket": fmt.Sprintf("%d", pair.OriginalTicket),
		"reverseTicket":  fmt.Sprintf("%d", pair.ReverseTicket),
		"reason":         pair.CloseReason,
	}

	if err := s.fcmClient.SendMulticast(tokens, title, body, data); err != nil {
		log.Printf("Error sending close notification for original#%d: %v", pair.OriginalTicket, err)
	}
}

// notifyOrderFailure pushes an alert when opening a reverse fails. Failures
// repeat every poll cycle, so pushes are rate-limited per original ticket.
func (s *MirrorService) notifyOrderFailure(op *mt5.Position, cause error) {
	tokens := s.pushTokens()
	if len(tokens) == 0 {
		return
	}

	now := time.Now()

	s.notifyMu.Lock()
	last, seen := s.notifiedFailures[op.Ticket]
	if seen && now.Sub(last) < failureCooldown {
		s.notifyMu.Unlock()
		return
	}
	s.notifiedFailures[op.Ticket] = now
	// Drop stale entries so the map doesn't grow with dead tickets.
	for ticket, at := range s.notifiedFailures {
		if now.Sub(at) > failureCooldown*2 {
			delete(s.notifiedFailures, ticket)
		}
	}
	s.notifyMu.Unlock()

	title := fmt.Sprintf("⚠️ Reverse failed for %s", op.Symbol)
	body := fmt.Sprintf("Original #%d: %v", op.Ticket, cause)

	data := map[string]string{
		"event":          "mirror_failed",
		"symbol":         op.Symbol,
		"originalTicket": fmt.Sprintf("%d", op.Ticket),
	}

	if err := s.fcmClient.SendMulticast(tokens, title, body, data); err != nil {
		log.Printf("Error sending failure notification for original#%d: %v", op.Ticket, err)
	}
}
