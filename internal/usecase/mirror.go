package usecase

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"mirror-backend/internal/domain"
	"mirror-backend/internal/infrastructure/fcm"
	"mirror-backend/internal/infrastructure/mt5"
	"mirror-backend/internal/repository"
)

// TerminalGateway is the slice of the MT5 bridge API the mirror loop uses.
type TerminalGateway interface {
	Positions() ([]mt5.Position, error)
	PositionsBySymbol(symbol string) ([]mt5.Position, error)
	SymbolInfo(symbol string) (*mt5.SymbolInfo, error)
	SelectSymbol(symbol string) error
	Tick(symbol string) (*mt5.Tick, error)
	OrderSend(req *mt5.TradeRequest) (*mt5.OrderResult, error)
}

// MirrorService opens a reverse position for every original position in the
// terminal and closes it when the original closes. Exactly one reverse per
// original, ever: a reverse that closes on its own is not reopened.
type MirrorService struct {
	gateway   TerminalGateway
	repo      domain.MirrorRepository
	historian domain.MirrorHistorian // nil when DATABASE_URL is not set
	fcmClient *fcm.Client
	tokenRepo *repository.TokenRepository

	settings *domain.MirrorSettings
	mu       sync.RWMutex // guards settings

	// Wait between order_send and the link scan; the terminal needs a moment
	// to register the new position.
	linkWait time.Duration

	symbols   map[string]*mt5.SymbolInfo // per-symbol info cache
	symbolsMu sync.Mutex

	notifiedFailures map[int64]time.Time // original ticket -> last failure push
	notifyMu         sync.Mutex
}

func NewMirrorService(
	gateway TerminalGateway,
	repo domain.MirrorRepository,
	historian domain.MirrorHistorian,
	fcmClient *fcm.Client,
	tokenRepo *repository.TokenRepository,
) *MirrorService {
	return &MirrorService{
		gateway:          gateway,
		repo:             repo,
		historian:        historian,
		fcmClient:        fcmClient,
		tokenRepo:        tokenRepo,
		settings:         domain.DefaultMirrorSettings(),
		linkWait:         200 * time.Millisecond,
		symbols:          make(map[string]*mt5.SymbolInfo),
		notifiedFailures: make(map[int64]time.Time),
	}
}

// Settings returns a copy of the current settings.
func (s *MirrorService) Settings() *domain.MirrorSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.settings
	return &cp
}

// UpdateSettings replaces the loop settings. Zero identity fields keep their
// defaults so a partial update cannot orphan existing reverses.
func (s *MirrorService) UpdateSettings(settings *domain.MirrorSettings) {
	defaults := domain.DefaultMirrorSettings()
	if settings.Magic == 0 {
		settings.Magic = defaults.Magic
	}
	if settings.CommentPrefix == "" {
		settings.CommentPrefix = defaults.CommentPrefix
	}
	if settings.VolumeMultiplier <= 0 {
		settings.VolumeMultiplier = defaults.VolumeMultiplier
	}
	if settings.DeviationPoints <= 0 {
		settings.DeviationPoints = defaults.DeviationPoints
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// ActivePairs returns the live ticket map.
func (s *MirrorService) ActivePairs() []*domain.MirrorPair {
	return s.repo.GetActivePairs()
}

// Run drives the poll loop until ctx is cancelled.
func (s *MirrorService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	log.Printf("Mirror loop started (poll interval %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Process()
		select {
		case <-ctx.Done():
			log.Println("Mirror loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Process runs one poll cycle: rebuild the ticket map from comments, open
// missing reverses, close reverses whose original is gone, sync SL/TP.
func (s *MirrorService) Process() {
	settings := s.Settings()
	if !settings.Enabled {
		return
	}
	mtxPollCycles.Inc()

	positions, err := s.gateway.Positions()
	if err != nil {
		log.Printf("Error fetching positions: %v", err)
		mtxOrderErrors.WithLabelValues("positions").Inc()
		return
	}

	originals, reverses := classify(positions, settings)

	// Rebuild the mapping from reverse comments. This is what makes the
	// ticket map survive restarts without persisting it.
	for _, rp := range reverses {
		origTicket, ok := parseOriginalTicket(settings.CommentPrefix, rp.Comment)
		if !ok {
			continue
		}
		if _, exists := s.repo.GetPairByOriginal(origTicket); !exists {
			if err := s.repo.SavePair(&domain.MirrorPair{
				OriginalTicket: origTicket,
				ReverseTicket:  rp.Ticket,
				Symbol:         rp.Symbol,
				OriginalType:   oppositeType(rp.Type),
				ReverseVolume:  rp.Volume,
				OpenedAt:       time.Unix(rp.Time, 0),
				Status:         "ACTIVE",
			}); err != nil {
				log.Printf("Error recovering pair for original#%d: %v", origTicket, err)
			}
		}
		s.repo.MarkMirrored(origTicket)
	}

	// 1) Ensure a reverse exists for every current original, unless one was
	// already opened for it at some point.
	for _, op := range originals {
		if _, exists := s.repo.GetPairByOriginal(op.Ticket); exists {
			continue
		}
		if s.repo.HasMirrored(op.Ticket) {
			continue
		}
		s.openReverse(op, settings)
	}

	// 2) Close reverses whose original closed, drop mappings whose reverse
	// closed on its own, and keep SL/TP mirrored on live pairs.
	current, err := s.gateway.Positions()
	if err != nil {
		log.Printf("Error refreshing positions: %v", err)
		mtxOrderErrors.WithLabelValues("positions").Inc()
		return
	}
	byTicket := make(map[int64]mt5.Position, len(current))
	for _, p := range current {
		byTicket[p.Ticket] = p
	}

	for _, pair := range s.repo.GetActivePairs() {
		orig, origAlive := byTicket[pair.OriginalTicket]
		rev, revAlive := byTicket[pair.ReverseTicket]

		if !origAlive {
			if revAlive {
				if !s.closeReverse(&rev, settings) {
					// Close rejected; the pair stays active and the close is
					// retried next cycle.
					continue
				}
				pl := rev.Profit
				pair.ProfitLoss = &pl
			}
			s.finalizePair(pair, domain.CloseReasonOriginalClosed)
			continue
		}

		if !revAlive {
			// The reverse hit its SL/TP or was closed manually. One reverse
			// per original: drop the mapping, do not reopen.
			s.finalizePair(pair, domain.CloseReasonReverseClosed)
			continue
		}

		s.syncStops(&orig, &rev, settings)
	}

	gaugeActivePairs.Set(float64(len(s.repo.GetActivePairs())))
}

func classify(positions []mt5.Position, settings *domain.MirrorSettings) (originals, reverses []mt5.Position) {
	for _, p := range positions {
		if isReverse(&p, settings) {
			reverses = append(reverses, p)
		} else {
			originals = append(originals, p)
		}
	}
	return originals, reverses
}

func isReverse(p *mt5.Position, settings *domain.MirrorSettings) bool {
	return p.Magic == settings.Magic && strings.HasPrefix(p.Comment, settings.CommentPrefix)
}

// parseOriginalTicket extracts the original ticket from a reverse comment of
// the form "<prefix><ticket>".
func parseOriginalTicket(prefix, comment string) (int64, bool) {
	rest, ok := strings.CutPrefix(comment, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	ticket, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return ticket, true
}

func oppositeType(positionType int) int {
	if positionType == mt5.PositionTypeBuy {
		return mt5.PositionTypeSell
	}
	return mt5.PositionTypeBuy
}

// swappedStops returns the reverse position's stops: its SL is the original's
// TP and its TP is the original's SL. Unset (zero) levels stay unset.
func swappedStops(orig *mt5.Position) (sl, tp float64) {
	if orig.TakeProfit > 0 {
		sl = orig.TakeProfit
	}
	if orig.StopLoss > 0 {
		tp = orig.StopLoss
	}
	return sl, tp
}

func (s *MirrorService) openReverse(op mt5.Position, settings *domain.MirrorSettings) {
	if err := s.ensureSymbol(op.Symbol); err != nil {
		log.Printf("Can't select symbol %s: %v", op.Symbol, err)
		mtxOrderErrors.WithLabelValues("select").Inc()
		return
	}

	orderType := oppositeType(op.Type)
	volume := roundVolume(op.Volume*settings.VolumeMultiplier, s.cachedSymbol(op.Symbol))

	tick, err := s.gateway.Tick(op.Symbol)
	if err != nil {
		log.Printf("No tick for %s: %v", op.Symbol, err)
		mtxOrderErrors.WithLabelValues("tick").Inc()
		return
	}

	sl, tp := swappedStops(&op)
	req := &mt5.TradeRequest{
		Action:      mt5.TradeActionDeal,
		Symbol:      op.Symbol,
		Type:        orderType,
		Volume:      volume,
		Price:       mt5.MarketPrice(tick, orderType),
		StopLoss:    s.normalize(op.Symbol, sl),
		TakeProfit:  s.normalize(op.Symbol, tp),
		Deviation:   settings.DeviationPoints,
		Magic:       settings.Magic,
		Comment:     settings.CommentPrefix + strconv.FormatInt(op.Ticket, 10),
		TypeFilling: mt5.OrderFillingFOK,
		TypeTime:    mt5.OrderTimeGTC,
	}

	result, err := s.gateway.OrderSend(req)
	if err != nil {
		log.Printf("Error opening reverse for original#%d: %v", op.Ticket, err)
		mtxOrderErrors.WithLabelValues("open").Inc()
		s.notifyOrderFailure(&op, err)
		return
	}
	if !result.Done() {
		err := fmt.Errorf("order rejected: retcode=%d comment=%s", result.Retcode, result.Comment)
		log.Printf("Error opening reverse for original#%d: %v", op.Ticket, err)
		mtxOrderErrors.WithLabelValues("open").Inc()
		s.notifyOrderFailure(&op, err)
		return
	}

	log.Printf("Sent reverse %s %s vol=%.2f @ %.5f (order=%d, deal=%d)",
		op.Symbol, sideName(orderType), volume, req.Price, result.Order, result.Deal)

	// The terminal assigns the position ticket after execution; give it a
	// moment and recover the ticket from the comment.
	time.Sleep(s.linkWait)
	s.linkReverse(&op, settings)
}

// linkReverse finds the freshly opened reverse by scanning the symbol's
// positions for our comment and records the pair.
func (s *MirrorService) linkReverse(op *mt5.Position, settings *domain.MirrorSettings) {
	positions, err := s.gateway.PositionsBySymbol(op.Symbol)
	if err != nil {
		log.Printf("Error scanning %s positions after open: %v", op.Symbol, err)
		// The order went through; make sure we never open a second reverse.
		// The next poll links the pair from the comment.
		s.repo.MarkMirrored(op.Ticket)
		return
	}

	for _, p := range positions {
		if !isReverse(&p, settings) {
			continue
		}
		ticket, ok := parseOriginalTicket(settings.CommentPrefix, p.Comment)
		if !ok || ticket != op.Ticket {
			continue
		}

		pair := &domain.MirrorPair{
			OriginalTicket: op.Ticket,
			ReverseTicket:  p.Ticket,
			Symbol:         op.Symbol,
			OriginalType:   op.Type,
			ReverseVolume:  p.Volume,
			OpenedAt:       time.Now(),
			Status:         "ACTIVE",
		}
		if err := s.repo.SavePair(pair); err != nil {
			log.Printf("Error saving pair original#%d: %v", op.Ticket, err)
			return
		}
		if s.historian != nil {
			if err := s.historian.RecordOpen(pair); err != nil {
				log.Printf("Error recording open for original#%d: %v", op.Ticket, err)
			}
		}
		mtxMirrorOpens.Inc()
		log.Printf("Linked original#%d -> reverse#%d", op.Ticket, p.Ticket)
		s.notifyMirrorOpened(pair)
		return
	}

	s.repo.MarkMirrored(op.Ticket)
}

// closeReverse sends the opposite-side deal bound to the position ticket.
// The price field is required by the terminal but ignored for position
// closes.
func (s *MirrorService) closeReverse(rev *mt5.Position, settings *domain.MirrorSettings) bool {
	tick, err := s.gateway.Tick(rev.Symbol)
	if err != nil {
		log.Printf("No tick for %s: %v", rev.Symbol, err)
		mtxOrderErrors.WithLabelValues("close").Inc()
		return false
	}

	req := &mt5.TradeRequest{
		Action:    mt5.TradeActionDeal,
		Position:  rev.Ticket,
		Symbol:    rev.Symbol,
		Volume:    rev.Volume,
		Type:      oppositeType(rev.Type),
		Price:     mt5.MarketPrice(tick, rev.Type),
		Deviation: settings.DeviationPoints,
		Magic:     settings.Magic,
		Comment:   "close reverse (orig closed)",
	}

	result, err := s.gateway.OrderSend(req)
	if err != nil {
		log.Printf("Close failed pos#%d: %v", rev.Ticket, err)
		mtxOrderErrors.WithLabelValues("close").Inc()
		return false
	}
	if !result.Done() {
		log.Printf("Close failed pos#%d: retcode=%d", rev.Ticket, result.Retcode)
		mtxOrderErrors.WithLabelValues("close").Inc()
		return false
	}

	log.Printf("Closed reverse pos#%d", rev.Ticket)
	return true
}

func (s *MirrorService) finalizePair(pair *domain.MirrorPair, reason string) {
	now := time.Now()
	pair.Status = "CLOSED"
	pair.ClosedAt = &now
	pair.CloseReason = reason

	if err := s.repo.UpdatePair(pair); err != nil {
		log.Printf("Error closing pair original#%d: %v", pair.OriginalTicket, err)
		return
	}
	if s.historian != nil {
		if err := s.historian.RecordClose(pair); err != nil {
			log.Printf("Error recording close for original#%d: %v", pair.OriginalTicket, err)
		}
	}
	mtxMirrorCloses.WithLabelValues(reason).Inc()
	log.Printf("Pair closed: original#%d reverse#%d reason=%s",
		pair.OriginalTicket, pair.ReverseTicket, reason)
	s.notifyMirrorClosed(pair)
}

// syncStops keeps the reverse's SL/TP mirroring the original's TP/SL,
// sending a modify only when the normalized values differ.
func (s *MirrorService) syncStops(orig, rev *mt5.Position, settings *domain.MirrorSettings) {
	desiredSL, desiredTP := swappedStops(orig)

	if !s.stopChanged(rev.Symbol, desiredSL, rev.StopLoss) &&
		!s.stopChanged(rev.Symbol, desiredTP, rev.TakeProfit) {
		return
	}

	req := &mt5.TradeRequest{
		Action:     mt5.TradeActionSLTP,
		Position:   rev.Ticket,
		Symbol:     rev.Symbol,
		StopLoss:   s.normalize(rev.Symbol, desiredSL),
		TakeProfit: s.normalize(rev.Symbol, desiredTP),
		Magic:      settings.Magic,
		Comment:    "sync sltp",
	}

	result, err := s.gateway.OrderSend(req)
	if err != nil {
		log.Printf("SL/TP modify failed for pos#%d: %v", rev.Ticket, err)
		mtxOrderErrors.WithLabelValues("sltp").Inc()
		return
	}
	if !result.Done() {
		log.Printf("SL/TP modify failed for pos#%d: retcode=%d", rev.Ticket, result.Retcode)
		mtxOrderErrors.WithLabelValues("sltp").Inc()
	}
}

// stopChanged compares a desired stop level against the current one; zero
// means unset on both sides.
func (s *MirrorService) stopChanged(symbol string, desired, current float64) bool {
	if desired <= 0 && current <= 0 {
		return false
	}
	if desired <= 0 || current <= 0 {
		return true
	}
	return s.normalize(symbol, desired) != s.normalize(symbol, current)
}

// ensureSymbol makes the symbol tradable, selecting it into Market Watch if
// the terminal has it hidden.
func (s *MirrorService) ensureSymbol(symbol string) error {
	info, err := s.gateway.SymbolInfo(symbol)
	if err != nil {
		return err
	}

	s.symbolsMu.Lock()
	s.symbols[symbol] = info
	s.symbolsMu.Unlock()

	if !info.Visible {
		return s.gateway.SelectSymbol(symbol)
	}
	return nil
}

func (s *MirrorService) cachedSymbol(symbol string) *mt5.SymbolInfo {
	s.symbolsMu.Lock()
	defer s.symbolsMu.Unlock()
	if info, ok := s.symbols[symbol]; ok {
		return info
	}
	return nil
}

// normalize rounds price to the symbol's digits. Unknown symbols pass
// through unchanged.
func (s *MirrorService) normalize(symbol string, price float64) float64 {
	info := s.cachedSymbol(symbol)
	if info == nil {
		if fetched, err := s.gateway.SymbolInfo(symbol); err == nil {
			s.symbolsMu.Lock()
			s.symbols[symbol] = fetched
			s.symbolsMu.Unlock()
			info = fetched
		}
	}
	if info == nil {
		return price
	}
	return mt5.NormalizePrice(info.Digits, price)
}

// roundVolume snaps the volume to the symbol's lot step when known,
// otherwise rounds to two decimals, which most brokers accept.
func roundVolume(volume float64, info *mt5.SymbolInfo) float64 {
	if info != nil && info.VolumeStep > 0 {
		v := math.Round(volume/info.VolumeStep) * info.VolumeStep
		if info.VolumeMin > 0 && v < info.VolumeMin {
			v = info.VolumeMin
		}
		if info.VolumeMax > 0 && v > info.VolumeMax {
			v = info.VolumeMax
		}
		return math.Round(v*1e8) / 1e8
	}
	return math.Round(volume*100) / 100
}

func sideName(orderType int) string {
	if orderType == mt5.OrderTypeBuy {
		return "BUY"
	}
	return "SELL"
}
