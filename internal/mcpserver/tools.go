package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/netshell-labs/netshell/internal/netdev"
	"github.com/netshell-labs/netshell/internal/sshsession"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(connectTool(), s.handleConnect)
	s.mcp.AddTool(disconnectTool(), s.handleDisconnect)
	s.mcp.AddTool(listSessionsTool(), s.handleListSessions)
	s.mcp.AddTool(execTool(), s.handleExec)
	s.mcp.AddTool(execMultiTool(), s.handleExecMulti)
	s.mcp.AddTool(sendRawTool(), s.handleSendRaw)
	s.mcp.AddTool(linuxOSInfoTool(), s.handleLinuxOSInfo)
	s.mcp.AddTool(linuxUploadTextTool(), s.handleLinuxUploadText)
	s.mcp.AddTool(srosCLITool(), s.handleSROSCLI)
	s.mcp.AddTool(srosConfigureTool(), s.handleSROSConfigure)
	s.mcp.AddTool(srosGetContextTool(), s.handleSROSGetContext)
	s.mcp.AddTool(srosRollbackTool(), s.handleSROSRollback)
}

// Tool definitions

func connectTool() mcp.Tool {
	return mcp.NewTool("ssh_connect",
		mcp.WithDescription("Open an SSH session to a Linux host or Nokia SR OS router"),
		mcp.WithString("host", mcp.Required(), mcp.Description("Hostname or IP address")),
		mcp.WithNumber("port", mcp.Description("SSH port (default: 22)")),
		mcp.WithString("username", mcp.Required(), mcp.Description("SSH username")),
		mcp.WithString("password", mcp.Description("SSH password (either this or private_key)")),
		mcp.WithString("private_key", mcp.Description("PEM-encoded private key (either this or password)")),
		mcp.WithString("device_type", mcp.Required(), mcp.Description("Device type: 'linux' or 'sros'")),
		mcp.WithString("label", mcp.Description("Preferred session id; a taken label falls back to a generated id")),
		mcp.WithNumber("timeout", mcp.Description("Connect timeout in seconds")),
	)
}

func disconnectTool() mcp.Tool {
	return mcp.NewTool("ssh_disconnect",
		mcp.WithDescription("Close an SSH session and release its resources"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The session to close")),
	)
}

func listSessionsTool() mcp.Tool {
	return mcp.NewTool("ssh_list_sessions",
		mcp.WithDescription("List all active sessions with their metadata"),
	)
}

func execTool() mcp.Tool {
	return mcp.NewTool("ssh_exec",
		mcp.WithDescription("Run one command in a session and wait for the prompt"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command to run")),
		mcp.WithNumber("timeout", mcp.Description("Wait bound in seconds (default: session command timeout)")),
	)
}

func execMultiTool() mcp.Tool {
	return mcp.NewTool("ssh_exec_multi",
		mcp.WithDescription("Run commands sequentially in one session; a failure does not abort the rest"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithArray("commands", mcp.Required(),
			mcp.Description("Commands to run in order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func sendRawTool() mcp.Tool {
	return mcp.NewTool("ssh_send_raw",
		mcp.WithDescription("Write text to the session verbatim (no newline added, no prompt wait); escapes \\n \\r \\t \\xNN are interpreted"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Bytes to send")),
		mcp.WithNumber("wait", mcp.Description("Seconds to collect output before returning (default: configured quiescence window)")),
	)
}

func linuxOSInfoTool() mcp.Tool {
	return mcp.NewTool("linux_os_info",
		mcp.WithDescription("Collect hostname, kernel, and OS release from a Linux session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target linux session")),
	)
}

func linuxUploadTextTool() mcp.Tool {
	return mcp.NewTool("linux_upload_text",
		mcp.WithDescription("Write a text file on a Linux host through the shell (base64 transport)"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target linux session")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Remote file path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
	)
}

func srosCLITool() mcp.Tool {
	return mcp.NewTool("sros_cli",
		mcp.WithDescription("Run an MD-CLI operational command on an SR OS session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target sros session")),
		mcp.WithString("command", mcp.Required(), mcp.Description("Operational command")),
	)
}

func srosConfigureTool() mcp.Tool {
	return mcp.NewTool("sros_configure",
		mcp.WithDescription("Apply configuration lines in one exclusive transaction: edit-config, lines, commit or discard, quit-config"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target sros session")),
		mcp.WithArray("commands", mcp.Required(),
			mcp.Description("Configuration lines"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("commit", mcp.Description("Commit the candidate (default: true); false validates and discards")),
	)
}

func srosGetContextTool() mcp.Tool {
	return mcp.NewTool("sros_get_context",
		mcp.WithDescription("Query the current MD-CLI context path (pwc)"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target sros session")),
	)
}

func srosRollbackTool() mcp.Tool {
	return mcp.NewTool("sros_rollback",
		mcp.WithDescription("Revert committed configuration by N checkpoints"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target sros session")),
		mcp.WithNumber("steps", mcp.Description("Checkpoints to revert (default: 1)")),
	)
}

// Handlers

func (s *Server) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := mcp.ParseString(req, "host", "")
	username := mcp.ParseString(req, "username", "")
	deviceType := mcp.ParseString(req, "device_type", "")
	password := mcp.ParseString(req, "password", "")
	privateKey := mcp.ParseString(req, "private_key", "")

	if host == "" {
		return mcp.NewToolResultError("host is required"), nil
	}
	if username == "" {
		return mcp.NewToolResultError("username is required"), nil
	}
	if deviceType != "linux" && deviceType != "sros" {
		return mcp.NewToolResultError("device_type must be 'linux' or 'sros'"), nil
	}
	if password == "" && privateKey == "" {
		return mcp.NewToolResultError("password or private_key is required"), nil
	}

	sess, err := s.mgr.Create(ctx, sshsession.CreateParams{
		DeviceType: deviceType,
		Host:       host,
		Port:       mcp.ParseInt(req, "port", 22),
		Username:   username,
		Password:   password,
		PrivateKey: []byte(privateKey),
		Label:      mcp.ParseString(req, "label", ""),
		Timeout:    secondsArg(req, "timeout"),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"session_id":  sess.ID,
		"status":      "connected",
		"device_type": sess.DeviceType,
		"context":     sess.Driver.LastContext(),
	})
}

func (s *Server) handleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if err := s.mgr.Disconnect(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"session_id": id,
		"status":     "disconnected",
	})
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.mgr.List()
	return jsonResult(map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	command := mcp.ParseString(req, "command", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}

	ctx, cancel := boundWait(ctx, secondsArg(req, "timeout"))
	defer cancel()

	var out string
	err := s.mgr.WithSession(id, func(d netdev.Driver) error {
		var err error
		out, err = d.Execute(ctx, command)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"output": out})
}

func (s *Server) handleExecMulti(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	commands, err := stringSliceArg(req, "commands")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var results []netdev.BatchResult
	err = s.mgr.WithSession(id, func(d netdev.Driver) error {
		results = d.ExecuteBatch(ctx, commands)
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"results": results})
}

func (s *Server) handleSendRaw(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	text := mcp.ParseString(req, "text", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	wait := secondsArg(req, "wait")
	var out string
	err := s.mgr.WithSession(id, func(d netdev.Driver) error {
		var err error
		out, err = d.SendRaw(ctx, unescapeRaw(text), wait)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"output": out})
}

func (s *Server) handleLinuxOSInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var info netdev.OSInfo
	err := s.withLinux(id, func(d *netdev.LinuxDriver) error {
		var err error
		info, err = d.OSInfo(ctx)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) handleLinuxUploadText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	path := mcp.ParseString(req, "path", "")
	content := mcp.ParseString(req, "content", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	var out string
	err := s.withLinux(id, func(d *netdev.LinuxDriver) error {
		var err error
		out, err = d.UploadText(ctx, path, content)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"path":   path,
		"status": "uploaded",
		"output": out,
	})
}

func (s *Server) handleSROSCLI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	command := mcp.ParseString(req, "command", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}

	var out string
	err := s.withSROS(id, func(d *netdev.SROSDriver) error {
		var err error
		out, err = d.Execute(ctx, command)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"output": out})
}

func (s *Server) handleSROSConfigure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	commands, err := stringSliceArg(req, "commands")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// An empty transaction would still take the exclusive candidate lock on
	// the device for nothing; refuse it here rather than on the wire.
	if len(commands) == 0 {
		return mcp.NewToolResultError("commands must not be empty"), nil
	}
	commit := mcp.ParseBoolean(req, "commit", true)

	var res netdev.ConfigResult
	err = s.withSROS(id, func(d *netdev.SROSDriver) error {
		var err error
		res, err = d.Configure(ctx, commands, commit)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleSROSGetContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var path string
	err := s.withSROS(id, func(d *netdev.SROSDriver) error {
		var err error
		path, err = d.GetContext(ctx)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"context": path})
}

func (s *Server) handleSROSRollback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	steps := mcp.ParseInt(req, "steps", 1)

	var path string
	err := s.withSROS(id, func(d *netdev.SROSDriver) error {
		var err error
		path, err = d.Rollback(ctx, steps)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"context": path,
		"steps":   steps,
	})
}

// Dispatch helpers

// withLinux dispatches through the session's busy lock and rejects sessions
// of the wrong device type before any command is sent.
func (s *Server) withLinux(id string, fn func(*netdev.LinuxDriver) error) error {
	return s.mgr.WithSession(id, func(d netdev.Driver) error {
		ld, ok := d.(*netdev.LinuxDriver)
		if !ok {
			return fmt.Errorf("session %q is a %s session; this tool needs a linux session", id, d.DeviceType())
		}
		return fn(ld)
	})
}

func (s *Server) withSROS(id string, fn func(*netdev.SROSDriver) error) error {
	return s.mgr.WithSession(id, func(d netdev.Driver) error {
		sd, ok := d.(*netdev.SROSDriver)
		if !ok {
			return fmt.Errorf("session %q is a %s session; this tool needs an sros session", id, d.DeviceType())
		}
		return fn(sd)
	})
}

// secondsArg reads a numeric argument expressed in seconds. Zero means unset.
func secondsArg(req mcp.CallToolRequest, key string) time.Duration {
	sec := mcp.ParseFloat64(req, key, 0)
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

// boundWait derives a context bounded by a per-call timeout; zero leaves the
// session's default command timeout in charge.
func boundWait(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// stringSliceArg extracts a required []string argument. An empty array is
// valid; callers that cannot act on zero items enforce that themselves.
func stringSliceArg(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
