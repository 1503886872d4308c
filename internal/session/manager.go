// Package session drives the wallet-connection handshake and tracks the connected
// session until it is disconnected or deleted by the wallet.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/caip10"
	"github.com/HefaCom/health-florence-sub002/internal/model"
)

// State of a Manager
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrConnectInProgress rejects a connect while another handshake has not returned,
	// including one that disconnect or close already aborted
	ErrConnectInProgress = errors.New("session: connect already in progress")
	// ErrNoAccount is returned when an approved session carries no xrpl account
	ErrNoAccount = errors.New("session: approved session has no xrpl account")
	// ErrConnectAborted is returned when disconnect or close overtook a pending connect
	ErrConnectAborted = errors.New("session: connect aborted")
	// ErrClosed is returned by a closed Manager
	ErrClosed = errors.New("session: manager closed")
)

// Reason is sent to the session client when closing a session
type Reason struct {
	Code    int
	Message string
}

// ReasonUserDisconnected marks a session closed by the user
var ReasonUserDisconnected = Reason{Code: 6000, Message: "User disconnected."}

const (
	methodSignTransaction    = "xrpl_signTransaction"
	methodSignTransactionFor = "xrpl_signTransactionFor"
)

// ConnectRequest is the handshake proposal sent to the session client
type ConnectRequest struct {
	ProjectID          string
	Metadata           model.SessionMetadata
	RequiredNamespaces map[string]model.Namespace
	OptionalNamespaces map[string]model.Namespace
}

// Proposal is the client's answer to a connect request. URI is the pairing URI to
// present, empty when the client resumed an existing pairing. Approval blocks until
// the wallet approves or rejects.
type Proposal struct {
	URI      string
	Approval func(ctx context.Context) (model.Session, error)
}

// Client is the external wallet-connection client. It publishes lifecycle events
// for its sessions on the Bus the Manager was built with.
type Client interface {
	Connect(ctx context.Context, req ConnectRequest) (Proposal, error)
	Disconnect(ctx context.Context, topic string, reason Reason) error
}

// Presenter shows the pairing URI to the user. Both calls are fire-and-forget.
type Presenter interface {
	Open(uri string)
	Close()
}

// Status is a snapshot of the manager
type Status struct {
	State   State
	Account *model.Account
	Session *model.Session
}

// Options configure a Manager
type Options struct {
	ProjectID string
	Metadata  model.SessionMetadata
	Presenter Presenter
	Logger    *zap.Logger
	// OnStatus is called after every state or account change, outside the lock
	OnStatus func(Status)
}

// Manager owns at most one wallet session
type Manager struct {
	client    Client
	bus       *Bus
	presenter Presenter
	projectID string
	metadata  model.SessionMetadata
	logger    *zap.Logger
	onStatus  func(Status)

	mu      sync.Mutex
	state   State
	chain   string
	session *model.Session
	account *model.Account
	sub     *Subscription
	gen     uint64 // bumped by connect, disconnect and close so a pending connect can tell it was overtaken
	closed  bool
	wg      sync.WaitGroup

	// handshake in flight
	pending       bool
	cancelConnect context.CancelFunc
	presenting    bool
}

// NewManager creates a disconnected manager
func NewManager(client Client, bus *Bus, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:    client,
		bus:       bus,
		presenter: opts.Presenter,
		projectID: opts.ProjectID,
		metadata:  opts.Metadata,
		logger:    logger.Named("session"),
		onStatus:  opts.OnStatus,
	}
}

// Connect runs the handshake for chain (e.g. "xrpl:testnet") and returns the selected
// account and session. Connecting from Connected drops the local state of the old
// session first; the old remote session is left to the wallet.
func (m *Manager) Connect(ctx context.Context, chain string) (model.Account, model.Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return model.Account{}, model.Session{}, ErrClosed
	}
	if m.pending {
		m.mu.Unlock()
		return model.Account{}, model.Session{}, ErrConnectInProgress
	}
	m.resetLocked()
	m.state = StateConnecting
	m.chain = chain
	m.gen++
	gen := m.gen
	hctx, cancel := context.WithCancel(ctx)
	m.pending = true
	m.cancelConnect = cancel
	m.mu.Unlock()
	m.notify()

	session, err := m.handshake(hctx, chain)
	cancel()
	m.mu.Lock()
	m.pending = false
	m.cancelConnect = nil
	m.mu.Unlock()
	if err != nil {
		return m.connectFailed(gen, err)
	}

	accounts := caip10.ParseAccounts(session.Namespaces)
	account, ok := caip10.SelectAccount(accounts, chain)
	if !ok {
		m.closeRemote(session.Topic)
		return m.connectFailed(gen, ErrNoAccount)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.closeRemote(session.Topic)
		m.logger.Info("connect overtaken by disconnect", zap.String("topic", session.Topic))
		return model.Account{}, model.Session{}, ErrConnectAborted
	}
	m.state = StateConnected
	m.session = &session
	m.account = &account
	m.sub = m.bus.Subscribe(session.Topic)
	m.wg.Add(1)
	go m.watch(m.sub)
	m.mu.Unlock()

	m.logger.Info("wallet connected",
		zap.String("topic", session.Topic),
		zap.String("address", account.Address),
		zap.String("chain", account.Chain))
	m.notify()
	return account, session, nil
}

// handshake proposes the session, presents the pairing URI and waits for approval.
// The presenter is closed on every path once opened.
func (m *Manager) handshake(ctx context.Context, chain string) (model.Session, error) {
	proposal, err := m.client.Connect(ctx, ConnectRequest{
		ProjectID:          m.projectID,
		Metadata:           m.metadata,
		RequiredNamespaces: requiredNamespaces(chain),
		OptionalNamespaces: optionalNamespaces(chain),
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("connect request failed: %w", err)
	}

	if proposal.URI != "" && m.presenter != nil {
		m.mu.Lock()
		aborted := ctx.Err() != nil
		if !aborted {
			m.presenting = true
		}
		m.mu.Unlock()
		if aborted {
			return model.Session{}, ctx.Err()
		}
		m.presenter.Open(proposal.URI)
		defer m.closePresenter()
	}
	if proposal.Approval == nil {
		return model.Session{}, errors.New("connect proposal has no approval")
	}

	session, err := proposal.Approval(ctx)
	if err != nil {
		return model.Session{}, fmt.Errorf("session approval failed: %w", err)
	}
	return session, nil
}

func (m *Manager) connectFailed(gen uint64, err error) (model.Account, model.Session, error) {
	m.mu.Lock()
	overtaken := m.gen != gen
	if !overtaken {
		m.resetLocked()
	}
	m.mu.Unlock()

	if overtaken {
		m.logger.Info("connect overtaken", zap.Error(err))
		return model.Account{}, model.Session{}, ErrConnectAborted
	}

	m.logger.Error("wallet connect failed", zap.Error(err))
	m.notify()
	return model.Account{}, model.Session{}, err
}

// Disconnect closes the held session with the client and clears local state.
// A pending connect is cancelled and its pairing code dismissed.
// Local state is cleared even when the client call fails; that error is returned.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.resetLocked()
	m.gen++
	m.abortPendingLocked()
	m.mu.Unlock()
	m.closePresenter()

	var err error
	if session != nil {
		if err = m.client.Disconnect(ctx, session.Topic, ReasonUserDisconnected); err != nil {
			m.logger.Warn("session client disconnect failed", zap.String("topic", session.Topic), zap.Error(err))
			err = fmt.Errorf("disconnect session %s: %w", session.Topic, err)
		}
	}
	m.notify()
	return err
}

// Status returns a copy of the current state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state}
	if m.account != nil {
		acc := *m.account
		st.Account = &acc
	}
	if m.session != nil {
		s := *m.session
		st.Session = &s
	}
	return st
}

// Close tears down the lifecycle subscription and waits for its watcher.
// The remote session is not closed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.resetLocked()
	m.abortPendingLocked()
	m.mu.Unlock()
	m.closePresenter()

	m.wg.Wait()
}

// watch applies lifecycle events of one subscription until it is closed
func (m *Manager) watch(sub *Subscription) {
	defer m.wg.Done()
	for {
		select {
		case ev := <-sub.Events():
			if m.apply(sub, ev) {
				m.notify()
			}
		case <-sub.Done():
			return
		}
	}
}

// apply reports whether ev changed anything
func (m *Manager) apply(sub *Subscription, ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sub != sub || m.session == nil || ev.Topic != m.session.Topic {
		return false
	}

	switch ev.Kind {
	case EventSessionUpdate:
		updated := *m.session
		updated.Namespaces = ev.Namespaces
		m.session = &updated

		accounts := caip10.ParseAccounts(ev.Namespaces)
		if acc, ok := caip10.SelectAccount(accounts, m.chain); ok {
			m.account = &acc
		} else {
			m.account = nil
		}
		m.logger.Info("session updated", zap.String("topic", ev.Topic), zap.Int("accounts", len(accounts)))
		return true

	case EventSessionDelete:
		m.logger.Info("session deleted by wallet", zap.String("topic", ev.Topic))
		m.resetLocked()
		return true
	}
	return false
}

// resetLocked drops the session, its subscription and the account. Caller holds mu.
func (m *Manager) resetLocked() {
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	m.session = nil
	m.account = nil
	m.state = StateDisconnected
}

// abortPendingLocked cancels an in-flight handshake. Caller holds mu.
// The handshake stays pending until it returns.
func (m *Manager) abortPendingLocked() {
	if m.cancelConnect != nil {
		m.cancelConnect()
		m.cancelConnect = nil
	}
}

// closePresenter dismisses the pairing code once per Open
func (m *Manager) closePresenter() {
	m.mu.Lock()
	wasOpen := m.presenting
	m.presenting = false
	m.mu.Unlock()

	if wasOpen {
		m.presenter.Close()
	}
}

// closeRemote best-effort closes a session this manager will not keep
func (m *Manager) closeRemote(topic string) {
	if err := m.client.Disconnect(context.Background(), topic, ReasonUserDisconnected); err != nil {
		m.logger.Warn("failed to close unused session", zap.String("topic", topic), zap.Error(err))
	}
}

func (m *Manager) notify() {
	if m.onStatus != nil {
		m.onStatus(m.Status())
	}
}

func requiredNamespaces(chain string) map[string]model.Namespace {
	return map[string]model.Namespace{
		caip10.NamespaceXRPL: {
			Chains:  []string{chain},
			Methods: []string{methodSignTransaction},
			Events:  []string{"chainChanged", "accountsChanged"},
		},
	}
}

func optionalNamespaces(chain string) map[string]model.Namespace {
	return map[string]model.Namespace{
		caip10.NamespaceXRPL: {
			Chains:  []string{chain},
			Methods: []string{methodSignTransactionFor},
			Events:  []string{},
		},
	}
}
