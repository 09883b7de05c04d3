package game

import (
	"os"
	"path/filepath"

	"github.com/user/niuniu-bot/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// StateStore owns every persisted group and user record. All mutation
// flows through the game manager, which serializes access; the store
// itself does no locking.
type StateStore struct {
	path   string
	logger *zap.Logger
	groups map[string]*types.GroupState
}

// NewStateStore loads the group state file, healing malformed records.
func NewStateStore(path string, logger *zap.Logger) *StateStore {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Error("Failed to create data directory", zap.Error(err))
	}

	s := &StateStore{
		path:   path,
		logger: logger,
		groups: make(map[string]*types.GroupState),
	}
	s.load()
	return s
}

// load reads the state file. A group value that does not decode into
// the expected record shape is replaced with a fresh disabled shell
// rather than failing startup.
func (s *StateStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to read group state file", zap.Error(err))
		}
		return
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		s.logger.Error("Group state file unreadable, starting fresh", zap.Error(err))
		return
	}

	for id, node := range raw {
		var group types.GroupState
		if err := node.Decode(&group); err != nil {
			s.logger.Warn("Replacing malformed group record",
				zap.String("group_id", id),
				zap.Error(err))
			s.groups[id] = &types.GroupState{Users: make(map[string]*types.UserRecord)}
			continue
		}
		if group.Users == nil {
			group.Users = make(map[string]*types.UserRecord)
		}
		for _, user := range group.Users {
			if user.Items == nil {
				user.Items = make(map[string]int)
			}
		}
		s.groups[id] = &group
	}
}

// Save persists the full mapping. Failures are logged and swallowed:
// the in-memory state stays authoritative for the rest of the process.
func (s *StateStore) Save() {
	data, err := yaml.Marshal(s.groups)
	if err != nil {
		s.logger.Error("Failed to marshal group state", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.logger.Error("Failed to persist group state", zap.Error(err))
	}
}

// Group returns the state for a group, creating a disabled shell on
// first reference. Groups are never deleted.
func (s *StateStore) Group(groupID string) *types.GroupState {
	group, exists := s.groups[groupID]
	if !exists {
		group = &types.GroupState{Users: make(map[string]*types.UserRecord)}
		s.groups[groupID] = group
	}
	return group
}

// User returns the record for (group, user), or nil when the user has
// not registered in that group. It never creates.
func (s *StateStore) User(groupID, userID string) *types.UserRecord {
	group, exists := s.groups[groupID]
	if !exists {
		return nil
	}
	return group.Users[userID]
}

// Groups exposes the full mapping for read-only projections.
func (s *StateStore) Groups() map[string]*types.GroupState {
	return s.groups
}

// AdminList is the collaborator-owned list of privileged users allowed
// to flip the per-group feature gate.
type AdminList struct {
	path   string
	logger *zap.Logger
}

// NewAdminList points at the admin list file.
func NewAdminList(path string, logger *zap.Logger) *AdminList {
	return &AdminList{path: path, logger: logger}
}

// IsAdmin reports whether the user appears in the admin list. The file
// is re-read on every call so edits take effect without a restart.
func (a *AdminList) IsAdmin(userID string) bool {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Error("Failed to read admin list", zap.Error(err))
		}
		return false
	}

	var admins []string
	if err := yaml.Unmarshal(data, &admins); err != nil {
		a.logger.Error("Failed to parse admin list", zap.Error(err))
		return false
	}

	for _, id := range admins {
		if id == userID {
			return true
		}
	}
	return false
}
