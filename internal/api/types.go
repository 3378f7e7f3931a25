package api

import "time"

// User is a master user account.
type User struct {
	ID          int        `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName,omitempty"`
	Admin       bool       `json:"admin"`
	Active      bool       `json:"active"`
	Remote      bool       `json:"remote,omitempty"`
	ModifiedAt  *time.Time `json:"modifiedAt,omitempty"`
	LastAuthAt  *time.Time `json:"lastAuthAt,omitempty"`
}

// Name is the display name when set, the username otherwise.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Workspace groups projects and experiments.
type Workspace struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Archived       bool   `json:"archived"`
	Username       string `json:"username"`
	UserID         int    `json:"userId"`
	Immutable      bool   `json:"immutable"`
	NumProjects    int    `json:"numProjects"`
	NumExperiments int    `json:"numExperiments"`
	State          string `json:"state"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	Pinned         bool   `json:"pinned"`

	DefaultComputePool string `json:"defaultComputePool,omitempty"`
	DefaultAuxPool     string `json:"defaultAuxPool,omitempty"`
}

// ResourcePool is a scheduling pool of agents.
type ResourcePool struct {
	Name                   string `json:"name"`
	Description            string `json:"description"`
	Type                   string `json:"type"`
	NumAgents              int    `json:"numAgents"`
	SlotsAvailable         int    `json:"slotsAvailable"`
	SlotsUsed              int    `json:"slotsUsed"`
	SlotType               string `json:"slotType,omitempty"`
	AuxContainerCapacity   int    `json:"auxContainerCapacity"`
	AuxContainersRunning   int    `json:"auxContainersRunning"`
	DefaultComputePool     bool   `json:"defaultComputePool"`
	DefaultAuxPool         bool   `json:"defaultAuxPool"`
	Preemptible            bool   `json:"preemptible"`
	MinAgents              int    `json:"minAgents"`
	MaxAgents              int    `json:"maxAgents"`
	SlotsPerAgent          int    `json:"slotsPerAgent"`
	SchedulerType          string `json:"schedulerType"`
	SchedulerFittingPolicy string `json:"schedulerFittingPolicy"`
	Location               string `json:"location"`
	ImageID                string `json:"imageId"`
	InstanceType           string `json:"instanceType"`
}

// SlotsFree is the number of available slots not in use.
func (p ResourcePool) SlotsFree() int {
	if free := p.SlotsAvailable - p.SlotsUsed; free > 0 {
		return free
	}
	return 0
}

// MasterInfo is the response of /api/v1/master.
type MasterInfo struct {
	Version            string `json:"version"`
	MasterID           string `json:"masterId"`
	ClusterID          string `json:"clusterId"`
	ClusterName        string `json:"clusterName"`
	TelemetryEnabled   bool   `json:"telemetryEnabled"`
	SSOProviders       []any  `json:"ssoProviders,omitempty"`
	ExternalLoginURI   string `json:"externalLoginUri,omitempty"`
	ExternalLogoutURI  string `json:"externalLogoutUri,omitempty"`
	Branding           string `json:"branding,omitempty"`
	RBACEnabled        bool   `json:"rbacEnabled"`
	StrictJobQueueCtrl bool   `json:"strictJobQueueControl,omitempty"`
}

// Agent is a machine registered with the master.
type Agent struct {
	ID             string   `json:"id"`
	RegisteredTime string   `json:"registeredTime,omitempty"`
	ResourcePools  []string `json:"resourcePools"`
	Addresses      []string `json:"addresses,omitempty"`
	Enabled        bool     `json:"enabled"`
	Draining       bool     `json:"draining"`
}

// UserSetting is one stored user preference.
type UserSetting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	StoragePath string `json:"storagePath"`
}

// Pagination mirrors the master's pagination envelope.
type Pagination struct {
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
	StartIndex int `json:"startIndex"`
	EndIndex   int `json:"endIndex"`
	Total      int `json:"total"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsHashed bool   `json:"isHashed"`
}

// LoginResponse is returned by /api/v1/auth/login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type currentUserResponse struct {
	User User `json:"user"`
}

type usersResponse struct {
	Users      []User      `json:"users"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type workspacesResponse struct {
	Workspaces []Workspace `json:"workspaces"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type workspaceResponse struct {
	Workspace Workspace `json:"workspace"`
}

type resourcePoolsResponse struct {
	ResourcePools []ResourcePool `json:"resourcePools"`
	Pagination    *Pagination    `json:"pagination,omitempty"`
}

type agentsResponse struct {
	Agents []Agent `json:"agents"`
}

type userSettingsResponse struct {
	Settings []UserSetting `json:"settings"`
}
