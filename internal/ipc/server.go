package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"conveyor/internal/api"
	"conveyor/internal/daemon"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, api: d.Service(), logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun conveyor daemon stop"))
	}
}

// service is the RPC receiver. Every exported method is an RPC endpoint.
type service struct {
	daemon *daemon.Daemon
	api    *api.Service
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) scope(meta Meta) (context.Context, *slog.Logger) {
	ctx := s.ctx
	if meta.RequestID != "" {
		ctx = services.WithRequestID(ctx, meta.RequestID)
	}
	return ctx, logging.WithContext(ctx, s.logger)
}

func (s *service) Start(req Empty, resp *StartResponse) error {
	_, log := s.scope(req.Meta)
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	log.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(req Empty, resp *StopResponse) error {
	_, log := s.scope(req.Meta)
	s.daemon.Stop()
	resp.Stopped = true
	log.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(req Empty, resp *StatusResponse) error {
	ctx, _ := s.scope(req.Meta)
	status := s.daemon.Status(ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.MetricsAddr = status.MetricsAddr
	resp.Engine = status.Engine
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *TransferResponse) error {
	ctx, log := s.scope(req.Meta)
	t, err := s.api.Enqueue(ctx, req.Transfer)
	if err != nil {
		return encodeError(err)
	}
	resp.Transfer = t
	log.Debug("transfer enqueued via IPC", logging.Int64(logging.FieldTransferID, t.ID))
	return nil
}

func (s *service) Pause(req Empty, resp *EngineResponse) error {
	ctx, log := s.scope(req.Meta)
	s.api.Pause()
	resp.Running = s.api.Status(ctx).Running
	log.Info("queue paused via IPC", logging.String(logging.FieldEventType, "queue_pause"))
	return nil
}

func (s *service) Resume(req Empty, resp *EngineResponse) error {
	ctx, log := s.scope(req.Meta)
	s.api.Resume()
	resp.Running = s.api.Status(ctx).Running
	log.Info("queue resumed via IPC", logging.String(logging.FieldEventType, "queue_resume"))
	return nil
}

func (s *service) Cancel(req IDRequest, resp *TransferResponse) error {
	ctx, _ := s.scope(req.Meta)
	return s.transfer(resp, func() (api.Transfer, error) { return s.api.Cancel(ctx, req.ID) })
}

func (s *service) Restart(req IDRequest, resp *TransferResponse) error {
	ctx, _ := s.scope(req.Meta)
	return s.transfer(resp, func() (api.Transfer, error) { return s.api.Restart(ctx, req.ID) })
}

func (s *service) Resubmit(req IDRequest, resp *TransferResponse) error {
	ctx, _ := s.scope(req.Meta)
	return s.transfer(resp, func() (api.Transfer, error) { return s.api.Resubmit(ctx, req.ID) })
}

func (s *service) Describe(req IDRequest, resp *TransferResponse) error {
	ctx, _ := s.scope(req.Meta)
	return s.transfer(resp, func() (api.Transfer, error) { return s.api.Describe(ctx, req.ID) })
}

func (s *service) transfer(resp *TransferResponse, fn func() (api.Transfer, error)) error {
	t, err := fn()
	if err != nil {
		return encodeError(err)
	}
	resp.Transfer = t
	return nil
}

func (s *service) Remove(req IDRequest, resp *Ack) error {
	ctx, log := s.scope(req.Meta)
	if err := s.api.Remove(ctx, req.ID); err != nil {
		return encodeError(err)
	}
	resp.OK = true
	log.Info("transfer removed via IPC", logging.Int64(logging.FieldTransferID, req.ID))
	return nil
}

func (s *service) Purge(req PurgeRequest, resp *CountResponse) error {
	ctx, log := s.scope(req.Meta)
	n, err := s.api.Purge(ctx, req.Mode)
	if err != nil {
		return encodeError(err)
	}
	resp.Count = n
	log.Info("queue purged via IPC",
		logging.String(logging.FieldEventType, "queue_purge"),
		logging.String("mode", req.Mode),
		logging.Int64("removed_count", n))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *TransfersResponse) error {
	ctx, _ := s.scope(req.Meta)
	var (
		transfers []api.Transfer
		err       error
	)
	switch req.View {
	case "", "current":
		transfers, err = s.api.CurrentQueue(ctx)
	case "recent":
		transfers, err = s.api.RecentQueue(ctx, req.Limit)
	case "errors":
		transfers, err = s.api.ErrorQueue(ctx)
	case "warnings":
		transfers, err = s.api.WarningQueue(ctx)
	default:
		err = services.Validation("ipc", "queue list", fmt.Sprintf("unknown queue view %q", req.View))
	}
	if err != nil {
		return encodeError(err)
	}
	resp.Transfers = transfers
	return nil
}

func (s *service) Items(req ItemsRequest, resp *api.ItemPage) error {
	ctx, _ := s.scope(req.Meta)
	page, err := s.api.Items(ctx, req.TransferID, queue.ItemFilter{
		ShowSuccess: req.ShowSuccess,
		ShowSkipped: req.ShowSkipped,
		Offset:      req.Offset,
		Limit:       req.Limit,
	})
	if err != nil {
		return encodeError(err)
	}
	*resp = page
	return nil
}

func (s *service) VaultStatus(req Empty, resp *api.VaultStatus) error {
	ctx, _ := s.scope(req.Meta)
	status, err := s.api.VaultStatus(ctx)
	if err != nil {
		return encodeError(err)
	}
	*resp = status
	return nil
}

func (s *service) VaultUnlock(req PhraseRequest, resp *Ack) error {
	ctx, _ := s.scope(req.Meta)
	if err := s.api.ValidatePassPhrase(ctx, req.PassPhrase); err != nil {
		return encodeError(err)
	}
	resp.OK = true
	return nil
}

func (s *service) VaultChange(req PhraseRequest, resp *Ack) error {
	ctx, _ := s.scope(req.Meta)
	if err := s.api.ChangePassPhrase(ctx, req.PassPhrase); err != nil {
		return encodeError(err)
	}
	resp.OK = true
	return nil
}

func (s *service) VaultReset(req Empty, resp *Ack) error {
	ctx, log := s.scope(req.Meta)
	if err := s.api.ResetVault(ctx); err != nil {
		return encodeError(err)
	}
	resp.OK = true
	log.Info("vault reset via IPC", logging.String(logging.FieldEventType, "vault_reset"))
	return nil
}

func (s *service) AccountSave(req AccountRequest, resp *AccountResponse) error {
	ctx, _ := s.scope(req.Meta)
	account, err := s.api.SaveAccount(ctx, req.Account)
	if err != nil {
		return encodeError(err)
	}
	resp.Account = account
	return nil
}

func (s *service) AccountDelete(req IDRequest, resp *Ack) error {
	ctx, _ := s.scope(req.Meta)
	if err := s.api.DeleteAccount(ctx, req.ID); err != nil {
		return encodeError(err)
	}
	resp.OK = true
	return nil
}

func (s *service) Accounts(req Empty, resp *AccountsResponse) error {
	ctx, _ := s.scope(req.Meta)
	accounts, err := s.api.Accounts(ctx)
	if err != nil {
		return encodeError(err)
	}
	resp.Accounts = accounts
	return nil
}

func (s *service) SyncSave(req SyncRequest, resp *SyncResponse) error {
	ctx, _ := s.scope(req.Meta)
	sync, err := s.api.SaveSynchronization(ctx, req.Sync)
	if err != nil {
		return encodeError(err)
	}
	resp.Sync = sync
	return nil
}

func (s *service) SyncDelete(req IDRequest, resp *Ack) error {
	ctx, _ := s.scope(req.Meta)
	if err := s.api.DeleteSynchronization(ctx, req.ID); err != nil {
		return encodeError(err)
	}
	resp.OK = true
	return nil
}

func (s *service) Syncs(req Empty, resp *SyncsResponse) error {
	ctx, _ := s.scope(req.Meta)
	syncs, err := s.api.Synchronizations(ctx)
	if err != nil {
		return encodeError(err)
	}
	resp.Syncs = syncs
	return nil
}

func (s *service) SyncTrigger(req IDRequest, resp *TriggerResponse) error {
	ctx, _ := s.scope(req.Meta)
	t, err := s.api.TriggerSynchronization(ctx, req.ID)
	if err != nil {
		return encodeError(err)
	}
	resp.Transfer = t
	return nil
}
