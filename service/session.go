package service

import (
	"sync"
	"time"

	"github.com/mirareader/mira-pool/utils"
	log "github.com/sirupsen/logrus"
)

const (
	anonymousClientID string = "anonymous"
)

// ClientSession tracks a front-end calling the service
type ClientSession struct {
	clientID       string
	creationTime   time.Time
	lastAccessTime time.Time
	requests       int64
}

// GetClientID returns client id
func (session *ClientSession) GetClientID() string {
	return session.clientID
}

// GetCreationTime returns creation time
func (session *ClientSession) GetCreationTime() time.Time {
	return session.creationTime
}

// GetLastAccessTime returns last access time
func (session *ClientSession) GetLastAccessTime() time.Time {
	return session.lastAccessTime
}

// GetRequests returns the number of requests made in the session
func (session *ClientSession) GetRequests() int64 {
	return session.requests
}

// ClientSessionManager manages ClientSessions, idle sessions are released after timeout
type ClientSessionManager struct {
	timeout  time.Duration
	sessions map[string]*ClientSession // key: client id

	mutex         sync.RWMutex
	terminateChan chan bool
	terminateOnce sync.Once
}

// NewClientSessionManager creates a new ClientSessionManager
func NewClientSessionManager(timeout time.Duration) *ClientSessionManager {
	manager := &ClientSessionManager{
		timeout:       timeout,
		sessions:      map[string]*ClientSession{},
		terminateChan: make(chan bool),
	}

	if timeout > 0 {
		interval := timeout / 10
		if interval < time.Second {
			interval = time.Second
		}

		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-manager.terminateChan:
					// terminate
					return
				case <-ticker.C:
					manager.releaseStaleSessions(time.Now())
				}
			}
		}()
	}

	return manager
}

// Release stops the background cleanup and drops all sessions
func (manager *ClientSessionManager) Release() {
	manager.terminateOnce.Do(func() {
		close(manager.terminateChan)
	})

	manager.ReleaseAll()
}

// Touch records a request of the client, creating a session if needed
func (manager *ClientSessionManager) Touch(clientID string) *ClientSession {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "ClientSessionManager",
		"function": "Touch",
	})

	if len(clientID) == 0 {
		clientID = anonymousClientID
	}

	now := time.Now()

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	session, ok := manager.sessions[clientID]
	if !ok {
		logger.Infof("Creating a new session for client id %q", clientID)
		session = &ClientSession{
			clientID:     clientID,
			creationTime: now,
		}
		manager.sessions[clientID] = session
	}

	session.lastAccessTime = now
	session.requests++
	return session
}

// GetSession returns the session of the client, nil if there is none
func (manager *ClientSessionManager) GetSession(clientID string) *ClientSession {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	return manager.sessions[clientID]
}

// Sessions returns the number of live sessions
func (manager *ClientSessionManager) Sessions() int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	return len(manager.sessions)
}

// ReleaseAll drops all sessions
func (manager *ClientSessionManager) ReleaseAll() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "ClientSessionManager",
		"function": "ReleaseAll",
	})

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if len(manager.sessions) > 0 {
		logger.Infof("Releasing %d sessions", len(manager.sessions))
	}
	manager.sessions = map[string]*ClientSession{}
}

func (manager *ClientSessionManager) releaseStaleSessions(now time.Time) int {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "ClientSessionManager",
		"function": "releaseStaleSessions",
	})

	defer utils.StackTraceFromPanic(logger)

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	released := 0
	for clientID, session := range manager.sessions {
		idle := now.Sub(session.lastAccessTime)
		if idle > manager.timeout {
			logger.Infof("Releasing the session for client id %q as it was idle for %s", clientID, idle.String())
			delete(manager.sessions, clientID)
			released++
		}
	}

	return released
}
