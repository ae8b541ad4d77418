package api

import (
	"net/http"
	"path/filepath"

	"launchman_backend/db"
)

type TreeNode struct {
	Pid      int32      `json:"pid"`
	Name     string     `json:"name"`
	Children []TreeNode `json:"children"`
}

func (srv *HttpServer) treeNode(pid int32, name string) TreeNode {
	node := TreeNode{
		Pid:      pid,
		Name:     name,
		Children: make([]TreeNode, 0),
	}
	for _, child := range srv.Manager.Tree.Children(pid) {
		node.Children = append(node.Children, srv.treeNode(child.PID(), child.Name()))
		_ = child.Close()
	}
	return node
}

// runningPid resolves the session in the path down to the pid of its
// launched application, writing the error response when the session is
// missing or nothing is running.
func (srv *HttpServer) runningPid(rw *ReqWrapper, r *http.Request) (*db.Session, int32, bool) {
	id, ok := rw.pathId(r)
	if !ok {
		return nil, 0, false
	}
	session, ok := srv.fetchSession(rw, r, id)
	if !ok {
		return nil, 0, false
	}
	runner, ok := srv.liveRunner(rw, id)
	if !ok {
		return nil, 0, false
	}
	pid := runner.CurrentPid()
	if pid == 0 {
		rw.E(MessageCodeSessionNotRunning, "session is not running", http.StatusBadRequest, "")
		return nil, 0, false
	}
	return session, pid, true
}

// GetSessionTree renders the live descendant tree of a running session,
// rooted at the launched executable.
func (srv *HttpServer) GetSessionTree(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	session, pid, ok := srv.runningPid(rw, r)
	if !ok {
		return
	}

	rw.MarshalAndRespond(srv.treeNode(pid, filepath.Base(session.ExecutablePath)))
}

type CmdlineResponse struct {
	CommandLine string `json:"command_line"`
}

func (srv *HttpServer) GetSessionCmdline(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	_, pid, ok := srv.runningPid(rw, r)
	if !ok {
		return
	}

	line, err := srv.Manager.Tree.CommandLine(r.Context(), pid)
	if err != nil {
		// Only cancellation surfaces here, anything else comes back as "".
		rw.E(MessageCodeRequestCancelled, "Request cancelled", http.StatusServiceUnavailable, err.Error())
		return
	}

	rw.MarshalAndRespond(CmdlineResponse{CommandLine: line})
}
