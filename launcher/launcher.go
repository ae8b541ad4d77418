package launcher

import (
	"context"
	"github.com/apepenkov/yalog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"launchman_backend/config"
	"launchman_backend/db"
	"launchman_backend/proctree"
	"sync"
	"time"
)

type Manager struct {
	Queries       *db.Queries
	Db            *pgxpool.Pool
	Logger        *yalog.Logger
	Config        *config.Config
	Notifications *config.NotificationsConfig
	Tree          *proctree.Manager

	runners      map[int32]*SessionRunner
	runnersMutex sync.RWMutex

	// The active session is the one whose application was launched most
	// recently and has not exited yet. Runners write it, the API reads it,
	// and all access goes through the accessors below.
	activeSession int32
	hasActive     bool
	activeMutex   sync.Mutex
}

func newPool(dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = 40
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// NewManager connects to the database, applies the schema and starts a
// runner for every stored session.
func NewManager(cfg config.Config, logger *yalog.Logger) (*Manager, error) {
	pool, err := newPool(cfg.Db)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.EnsureSchema(ctx, pool)
	cancel()
	if err != nil {
		return nil, err
	}

	notif, err := config.LoadOrCreateNotificationsConfig()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		Queries:       db.New(pool),
		Db:            pool,
		Logger:        logger,
		Config:        &cfg,
		Notifications: notif,
	}
	m.Tree = proctree.NewManager(logger.NewLogger("proctree"))
	m.Tree.KillTimeout = cfg.KillTimeout
	m.Tree.Notifier = treeNotifier{m: m}

	sessions, err := m.Queries.GetSessions(context.Background())
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		go m.AddRunner(&sessions[i]).Work()
	}
	return m, nil
}

func (m *Manager) Close() {
	m.Db.Close()
}

func (m *Manager) OpenTx(ctx context.Context) (pgx.Tx, *db.Queries, error) {
	tx, err := m.Db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tx, m.Queries.WithTx(tx), nil
}

func (m *Manager) AddRunner(session *db.Session) *SessionRunner {
	m.runnersMutex.Lock()
	defer m.runnersMutex.Unlock()
	if m.runners == nil {
		m.runners = make(map[int32]*SessionRunner)
	}
	r := NewSessionRunner(m, session)
	m.runners[session.ID] = r
	return r
}

func (m *Manager) RemoveRunner(sessionID int32) {
	m.runnersMutex.Lock()
	defer m.runnersMutex.Unlock()
	delete(m.runners, sessionID)
}

func (m *Manager) GetRunner(sessionID int32) *SessionRunner {
	m.runnersMutex.RLock()
	defer m.runnersMutex.RUnlock()
	return m.runners[sessionID]
}

// SetActiveSession records id as the session currently in front of the user.
func (m *Manager) SetActiveSession(id int32) {
	m.activeMutex.Lock()
	defer m.activeMutex.Unlock()
	m.activeSession = id
	m.hasActive = true
}

// ClearActiveSession empties the slot, but only if id still owns it. A
// session that exits after another one launched must not knock out the
// newcomer.
func (m *Manager) ClearActiveSession(id int32) {
	m.activeMutex.Lock()
	defer m.activeMutex.Unlock()
	if m.hasActive && m.activeSession == id {
		m.hasActive = false
		m.activeSession = 0
	}
}

func (m *Manager) ActiveSession() (int32, bool) {
	m.activeMutex.Lock()
	defer m.activeMutex.Unlock()
	return m.activeSession, m.hasActive
}

// treeNotifier forwards kill failures from the process tree to the
// configured notification targets.
type treeNotifier struct {
	m *Manager
}

func (n treeNotifier) Notify(text string) {
	for _, r := range n.m.Notifications.SendMessage(text) {
		if r.Success {
			continue
		}
		n.m.Logger.Warningf("Failed to send notification: %v\n", r.Error)
	}
}
