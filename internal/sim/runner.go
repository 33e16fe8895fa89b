// Package sim runs complete games in-process: it generates a game, wires a
// controller and a set of participants over the mailbox transport, and pumps
// messages round by round until trading quiets down.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/tradeworld/internal/controller"
	"github.com/talgya/tradeworld/internal/crypto"
	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/genesis"
	"github.com/talgya/tradeworld/internal/mailbox"
	"github.com/talgya/tradeworld/internal/negotiation"
	"github.com/talgya/tradeworld/internal/persistence"
	"github.com/talgya/tradeworld/internal/protocol"
)

// Config holds the parameters of one simulated game.
type Config struct {
	NbAgents          int     `json:"nb_agents"`
	NbGoods           int     `json:"nb_goods"`
	TxFee             float64 `json:"tx_fee"`
	MoneyEndowment    int     `json:"money_endowment"`
	BaseGoodEndowment int     `json:"base_good_endowment"`
	LowerBoundFactor  int     `json:"lower_bound_factor"`
	UpperBoundFactor  int     `json:"upper_bound_factor"`
	Rounds            int     `json:"rounds"`
	Seed              int64   `json:"seed"`
	WorldModeling     bool    `json:"world_modeling"`
	DBPath            string  `json:"db_path"`
}

// Result is the outcome of a completed run.
type Result struct {
	GameID       int64
	Transactions int
	Report       string
}

// Runner owns the pieces of one simulated game.
type Runner struct {
	cfg          Config
	logger       *slog.Logger
	ctrl         *controller.Controller
	participants []*Participant
	box          *mailbox.Mailbox
	db           *persistence.DB
	gameID       int64
}

// NewRunner generates a game from the config and wires every component.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	controllerIdentity := seededIdentity(rng)
	agentAddrs := make([]string, cfg.NbAgents)
	agentNames := make(map[string]string, cfg.NbAgents)
	identities := make([]*crypto.Identity, cfg.NbAgents)
	for i := range identities {
		identities[i] = seededIdentity(rng)
		agentAddrs[i] = identities[i].Address()
		agentNames[agentAddrs[i]] = fmt.Sprintf("agent_%d", i)
	}
	goodAddrs := make([]string, cfg.NbGoods)
	goodNames := make(map[string]string, cfg.NbGoods)
	for j := range goodAddrs {
		goodAddrs[j] = seededIdentity(rng).Address()
		goodNames[goodAddrs[j]] = fmt.Sprintf("good_%d", j)
	}

	gameCfg, err := game.NewGameConfiguration(cfg.NbAgents, cfg.NbGoods, cfg.TxFee, agentAddrs, goodAddrs, agentNames, goodNames)
	if err != nil {
		return nil, err
	}
	g, err := genesis.Generate(gameCfg, genesis.Params{
		NbAgents:          cfg.NbAgents,
		NbGoods:           cfg.NbGoods,
		TxFee:             cfg.TxFee,
		MoneyEndowment:    cfg.MoneyEndowment,
		BaseGoodEndowment: cfg.BaseGoodEndowment,
		LowerBoundFactor:  cfg.LowerBoundFactor,
		UpperBoundFactor:  cfg.UpperBoundFactor,
		Seed:              rng.Int63(),
	})
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		logger: logger,
		ctrl:   controller.New(controllerIdentity, g, logger),
		box:    mailbox.New(),
	}

	if cfg.DBPath != "" {
		db, err := persistence.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		gameID, err := db.CreateGame(g)
		if err != nil {
			db.Close()
			return nil, err
		}
		r.db = db
		r.gameID = gameID
		r.ctrl.SetRecorder(func(seq int, tx *protocol.Transaction) error {
			return db.AppendTransaction(gameID, seq, tx)
		})
	}

	r.box.Register(r.ctrl.Address())
	for i, identity := range identities {
		p := NewParticipant(identity, gameCfg, g.InitialAgentState(identity.Address()),
			negotiation.BaselineStrategy{WorldModeling: cfg.WorldModeling},
			cfg.WorldModeling, r.box, r.ctrl.Address(),
			rand.New(rand.NewSource(cfg.Seed+int64(i)+1)), logger)
		r.box.Register(p.Address())
		r.participants = append(r.participants, p)
	}
	return r, nil
}

// Controller exposes the game authority, for reporting.
func (r *Runner) Controller() *controller.Controller { return r.ctrl }

// Close releases the runner's resources.
func (r *Runner) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Run plays the configured number of rounds. Each round every participant
// refreshes its directory entry and opens new dialogues, then messages are
// pumped until no traffic remains.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.ctrl.StartGame()

	for round := 1; round <= r.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, p := range r.participants {
			p.Act()
		}
		delivered := r.pump()
		r.logger.Info("round complete", "round", round,
			"messages", delivered,
			"transactions", len(r.ctrl.Game().Transactions()))
	}

	r.ctrl.EndGame()
	report := r.ctrl.ScoreReport()
	r.logger.Info("run complete",
		"transactions", len(r.ctrl.Game().Transactions()))
	return &Result{
		GameID:       r.gameID,
		Transactions: len(r.ctrl.Game().Transactions()),
		Report:       report,
	}, nil
}

// pump delivers queued envelopes until every inbox is empty.
func (r *Runner) pump() int {
	delivered := 0
	for {
		progressed := 0
		for _, env := range r.box.Drain(r.ctrl.Address()) {
			progressed++
			msg := env.Message
			if msg.Performative != protocol.PerformativeTransaction {
				r.logger.Warn("controller ignoring message", "performative", msg.Performative)
				continue
			}
			for _, reply := range r.ctrl.HandleTransaction(env.Sender, msg.Transaction) {
				r.sendFrom(r.ctrl.Address(), reply)
			}
		}
		for _, p := range r.participants {
			for _, env := range r.box.Drain(p.Address()) {
				progressed++
				p.React(env)
			}
		}
		if progressed == 0 {
			return delivered
		}
		delivered += progressed
	}
}

func (r *Runner) sendFrom(sender string, msg *protocol.Message) {
	if err := r.box.Send(protocol.NewEnvelope(sender, msg)); err != nil {
		r.logger.Error("send failed", "to", msg.Destination, "error", err)
	}
}

// seededIdentity draws a deterministic identity from the run's random stream.
func seededIdentity(rng *rand.Rand) *crypto.Identity {
	seed := make([]byte, 32)
	rng.Read(seed)
	return crypto.NewIdentityFromSeed(seed)
}
