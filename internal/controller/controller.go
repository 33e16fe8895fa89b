// Package controller implements the game authority: it holds the ledger,
// matches the two signed copies of every agreed trade, settles them, and
// reports scores.
package controller

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/tradeworld/internal/crypto"
	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/protocol"
)

// GamePhase is the controller's lifecycle stage.
type GamePhase string

const (
	PhasePreGame  GamePhase = "pre_game"
	PhaseSetup    GamePhase = "game_setup"
	PhaseRunning  GamePhase = "game"
	PhasePostGame GamePhase = "post_game"
)

// TransactionRecorder receives every settled transaction in settlement order.
// Used to stream the log to persistent storage.
type TransactionRecorder func(seq int, tx *protocol.Transaction) error

// Controller validates and settles transactions against the ledger. A trade
// only settles once both parties have submitted their signed copy and the
// copies mirror each other.
type Controller struct {
	identity *crypto.Identity
	logger   *slog.Logger

	mu       sync.Mutex
	game     *game.Game
	phase    GamePhase
	pending  map[string]*protocol.Transaction // first copy by transaction id
	recorder TransactionRecorder
}

// New creates a controller over a freshly initialized game.
func New(identity *crypto.Identity, g *game.Game, logger *slog.Logger) *Controller {
	return &Controller{
		identity: identity,
		logger:   logger.With("component", "controller"),
		game:     g,
		phase:    PhasePreGame,
		pending:  make(map[string]*protocol.Transaction),
	}
}

// Address returns the controller's routing address.
func (c *Controller) Address() string { return c.identity.Address() }

// Game returns the ledger. Callers must not mutate it.
func (c *Controller) Game() *game.Game { return c.game }

// Phase returns the current lifecycle stage.
func (c *Controller) Phase() GamePhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetRecorder installs the settled-transaction sink.
func (c *Controller) SetRecorder(r TransactionRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// StartGame moves the controller into the running phase.
func (c *Controller) StartGame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseRunning
	c.logger.Info("game started",
		"agents", c.game.Configuration().NbAgents,
		"goods", c.game.Configuration().NbGoods,
		"tx_fee", c.game.Configuration().TxFee)
}

// EndGame moves the controller into the post-game phase. Pending half-trades
// are discarded.
func (c *Controller) EndGame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhasePostGame
	for id := range c.pending {
		c.logger.Debug("discarding unmatched transaction", "tx_id", id)
		delete(c.pending, id)
	}
	c.logger.Info("game ended", "transactions", len(c.game.Transactions()))
}

// HandleTransaction processes one signed transaction copy from a party.
// The first copy of a trade is held; the second triggers matching, validation
// and settlement. Returns the messages to deliver: confirmations to both
// parties on success, error messages on rejection, nothing while waiting for
// the counterparty's copy.
func (c *Controller) HandleTransaction(sender string, tx *protocol.Transaction) []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning {
		return []*protocol.Message{errorMessage(sender, "game is not running")}
	}
	if tx == nil {
		return []*protocol.Message{errorMessage(sender, "transaction missing")}
	}
	if tx.Sender != sender {
		c.logger.Warn("transaction sender mismatch", "tx_id", tx.ID, "from", sender, "claims", tx.Sender)
		return []*protocol.Message{errorMessage(sender, "transaction sender mismatch")}
	}
	if c.game.AgentState(tx.Sender) == nil || c.game.AgentState(tx.Counterparty) == nil {
		return []*protocol.Message{errorMessage(sender, "unknown party")}
	}
	if !crypto.Verify(tx.Sender, tx.SigningBytes(), tx.Signature) {
		c.logger.Warn("bad transaction signature", "tx_id", tx.ID, "sender", sender)
		return []*protocol.Message{errorMessage(sender, "invalid signature")}
	}

	first, ok := c.pending[tx.ID]
	if !ok {
		c.pending[tx.ID] = tx
		c.logger.Debug("holding transaction, awaiting counterparty",
			"tx_id", tx.ID, "sender", sender)
		return nil
	}
	delete(c.pending, tx.ID)

	if !first.Matches(tx) {
		c.logger.Warn("transaction copies do not match", "tx_id", tx.ID)
		return []*protocol.Message{
			rejectionMessage(first.Sender, "transaction copies do not match", first),
			rejectionMessage(tx.Sender, "transaction copies do not match", tx),
		}
	}
	if err := c.game.Settle(tx); err != nil {
		c.logger.Warn("transaction rejected", "tx_id", tx.ID, "error", err)
		return []*protocol.Message{
			rejectionMessage(first.Sender, err.Error(), first),
			rejectionMessage(tx.Sender, err.Error(), tx),
		}
	}

	seq := len(c.game.Transactions()) - 1
	if c.recorder != nil {
		if err := c.recorder(seq, tx); err != nil {
			// The settlement stands; losing the persistent copy is reported,
			// not rolled back.
			c.logger.Error("failed to record transaction", "tx_id", tx.ID, "error", err)
		}
	}
	c.logger.Info("transaction settled",
		"tx_id", tx.ID, "amount", tx.Amount,
		"buyer", c.game.Configuration().AgentNames[tx.Buyer()],
		"seller", c.game.Configuration().AgentNames[tx.Seller()])

	return []*protocol.Message{
		confirmationMessage(first.Sender, first),
		confirmationMessage(tx.Sender, tx),
	}
}

// PendingCount returns the number of half-submitted trades.
func (c *Controller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ScoreReport renders the final standings: per agent, initial score, final
// score and the gain, best gain first.
func (c *Controller) ScoreReport() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.game.Configuration()
	initial := c.game.InitialScores()
	final := c.game.Scores()

	type row struct {
		name           string
		initial, final float64
	}
	rows := make([]row, 0, len(cfg.AgentAddrs))
	for _, addr := range cfg.AgentAddrs {
		rows = append(rows, row{name: cfg.AgentNames[addr], initial: initial[addr], final: final[addr]})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].final-rows[i].initial > rows[j].final-rows[j].initial
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Final scores after %d transactions:\n", len(c.game.Transactions()))
	for _, r := range rows {
		gain := r.final - r.initial
		sign := ""
		if gain >= 0 {
			sign = "+"
		}
		fmt.Fprintf(&sb, "  %-12s %s -> %s (%s%s)\n", r.name,
			humanize.CommafWithDigits(r.initial, 2),
			humanize.CommafWithDigits(r.final, 2),
			sign, humanize.CommafWithDigits(gain, 2))
	}
	return sb.String()
}

func confirmationMessage(to string, tx *protocol.Transaction) *protocol.Message {
	return &protocol.Message{
		ID:           1,
		Destination:  to,
		Performative: protocol.PerformativeConfirmation,
		Transaction:  tx,
	}
}

func errorMessage(to, reason string) *protocol.Message {
	return &protocol.Message{
		ID:           1,
		Destination:  to,
		Performative: protocol.PerformativeError,
		ErrorMsg:     reason,
	}
}

// rejectionMessage is an error that carries the refused transaction so the
// party can release its lock.
func rejectionMessage(to, reason string, tx *protocol.Transaction) *protocol.Message {
	msg := errorMessage(to, reason)
	msg.Transaction = tx
	return msg
}
