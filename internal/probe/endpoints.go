package probe

import (
	"net/http"
	"strconv"
)

// Endpoint is one request the probe repeats.
type Endpoint struct {
	Name   string
	Method string
	Path   string
	Body   any
}

// DefaultEndpoints is the read-mostly set the console hits on every page
// load. Workspace-scoped endpoints are included when workspaceID is set.
func DefaultEndpoints(workspaceID int) []Endpoint {
	eps := []Endpoint{
		get("get master configuration", "/api/v1/master"),
		get("get agents", "/api/v1/agents"),
		get("get workspaces", "/api/v1/workspaces"),
		get("get user settings", "/api/v1/users/setting"),
		get("get resource pools", "/api/v1/resource-pools"),
		get("get users", "/api/v1/users"),
		get("get models", "/api/v1/models"),
		get("get model labels", "/api/v1/model/labels"),
		get("get telemetry", "/api/v1/master/telemetry"),
		get("get tensorboards", "/api/v1/tensorboards"),
		get("get shells", "/api/v1/shells"),
		get("get notebooks", "/api/v1/notebooks"),
		get("get commands", "/api/v1/commands"),
		get("get job queue stats", "/api/v1/job-queues/stats"),
		get("get tasks", "/api/v1/tasks"),
		get("get webhooks", "/api/v1/webhooks"),
	}
	if workspaceID > 0 {
		id := strconv.Itoa(workspaceID)
		eps = append(eps,
			get("get workspace projects", "/api/v1/workspaces/"+id+"/projects"),
			get("get available workspace resource pools", "/api/v1/workspaces/"+id+"/available-resource-pools"),
			get("get workspace notebooks", "/api/v1/notebooks?limit=1000&workspaceId="+id),
			get("get workspace model labels", "/api/v1/model/labels?workspaceId="+id),
		)
	}
	return eps
}

// LoginEndpoint measures the login call itself.
func LoginEndpoint(username, password string) Endpoint {
	return Endpoint{
		Name:   "login",
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   map[string]string{"username": username, "password": password},
	}
}

func get(name, path string) Endpoint {
	return Endpoint{Name: name, Method: http.MethodGet, Path: path}
}
