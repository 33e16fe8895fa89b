package negotiation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/talgya/tradeworld/internal/protocol"
)

// ErrNotFound is returned when a pending proposal or acceptance key is
// absent. Callers decide whether that is a protocol violation or an expected
// race.
var ErrNotFound = errors.New("pending transaction not found")

// ProtocolError reports an inbound message that violates the negotiation
// protocol. Handlers log it and drop the message; it never terminates the
// agent.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// DuplicateLockError reports an attempt to lock a transaction id twice.
// Lock ids derive deterministically from (identity, counterparty, dialogue,
// role), so this surfaces a logic error rather than a race.
type DuplicateLockError struct {
	TxID string
}

func (e *DuplicateLockError) Error() string {
	return fmt.Sprintf("transaction %s is already locked", e.TxID)
}

type lockedTx struct {
	tx       *protocol.Transaction
	asSeller bool
}

// LockManager is the reservation layer between "this agent promised a trade"
// and "the ledger recorded it". Locks hold resources against future
// profitability checks; pending proposals and acceptances await the
// counterparty's next move. One mutex guards every map: all dialogues of an
// agent share this single synchronization domain.
type LockManager struct {
	mu sync.Mutex

	locks     map[string]lockedTx
	lockOrder []string

	pendingProposals   map[DialogueLabel]map[int]*protocol.Transaction
	pendingAcceptances map[DialogueLabel]map[int]*protocol.Transaction
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks:              make(map[string]lockedTx),
		pendingProposals:   make(map[DialogueLabel]map[int]*protocol.Transaction),
		pendingAcceptances: make(map[DialogueLabel]map[int]*protocol.Transaction),
	}
}

// AddLock reserves the resources of a transaction under its id.
func (lm *LockManager) AddLock(tx *protocol.Transaction, asSeller bool) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, exists := lm.locks[tx.ID]; exists {
		return &DuplicateLockError{TxID: tx.ID}
	}
	lm.locks[tx.ID] = lockedTx{tx: tx, asSeller: asSeller}
	lm.lockOrder = append(lm.lockOrder, tx.ID)
	return nil
}

// PopLock releases and returns a lock. Absence is benign: declines and
// timeouts may race with each other.
func (lm *LockManager) PopLock(txID string) (*protocol.Transaction, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	entry, ok := lm.locks[txID]
	if !ok {
		return nil, false
	}
	delete(lm.locks, txID)
	for i, id := range lm.lockOrder {
		if id == txID {
			lm.lockOrder = append(lm.lockOrder[:i], lm.lockOrder[i+1:]...)
			break
		}
	}
	return entry.tx, true
}

// LockedTransactions returns the currently held locks for one role, in the
// order they were taken.
func (lm *LockManager) LockedTransactions(asSeller bool) []*protocol.Transaction {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	var txs []*protocol.Transaction
	for _, id := range lm.lockOrder {
		if entry := lm.locks[id]; entry.asSeller == asSeller {
			txs = append(txs, entry.tx)
		}
	}
	return txs
}

// StorePendingProposal records a proposal sent on a dialogue, awaiting the
// counterparty's accept.
func (lm *LockManager) StorePendingProposal(label DialogueLabel, msgID int, tx *protocol.Transaction) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.pendingProposals[label] == nil {
		lm.pendingProposals[label] = make(map[int]*protocol.Transaction)
	}
	lm.pendingProposals[label][msgID] = tx
}

// PopPendingProposal removes and returns the proposal keyed by dialogue and
// message id, or ErrNotFound.
func (lm *LockManager) PopPendingProposal(label DialogueLabel, msgID int) (*protocol.Transaction, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.pop(lm.pendingProposals, label, msgID)
}

// AddPendingAcceptance records a first-phase accept sent on a dialogue,
// awaiting the counterparty's confirming accept.
func (lm *LockManager) AddPendingAcceptance(label DialogueLabel, msgID int, tx *protocol.Transaction) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.pendingAcceptances[label] == nil {
		lm.pendingAcceptances[label] = make(map[int]*protocol.Transaction)
	}
	lm.pendingAcceptances[label][msgID] = tx
}

// PopPendingAcceptance removes and returns the acceptance keyed by dialogue
// and message id, or ErrNotFound.
func (lm *LockManager) PopPendingAcceptance(label DialogueLabel, msgID int) (*protocol.Transaction, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.pop(lm.pendingAcceptances, label, msgID)
}

// HasPendingAcceptance reports whether a first-phase accept is awaiting
// confirmation under the given key. Distinguishes a match accept from an
// initial accept.
func (lm *LockManager) HasPendingAcceptance(label DialogueLabel, msgID int) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	byMsg, ok := lm.pendingAcceptances[label]
	if !ok {
		return false
	}
	_, ok = byMsg[msgID]
	return ok
}

// DropDialogue discards every pending entry of a cancelled dialogue. Lock
// release is the caller's job: the lock key is the transaction id, which the
// caller derives from the dialogue.
func (lm *LockManager) DropDialogue(label DialogueLabel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	delete(lm.pendingProposals, label)
	delete(lm.pendingAcceptances, label)
}

func (lm *LockManager) pop(m map[DialogueLabel]map[int]*protocol.Transaction, label DialogueLabel, msgID int) (*protocol.Transaction, error) {
	byMsg, ok := m[label]
	if !ok {
		return nil, fmt.Errorf("dialogue %d with %s, msg %d: %w", label.DialogueID, label.Opponent, msgID, ErrNotFound)
	}
	tx, ok := byMsg[msgID]
	if !ok {
		return nil, fmt.Errorf("dialogue %d with %s, msg %d: %w", label.DialogueID, label.Opponent, msgID, ErrNotFound)
	}
	delete(byMsg, msgID)
	if len(byMsg) == 0 {
		delete(m, label)
	}
	return tx, nil
}
