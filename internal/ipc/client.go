package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/api"
	"conveyor/internal/synch"
	"conveyor/internal/vault"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

type request interface {
	setRequestID(id string)
}

func (c *Client) call(method string, req request, resp any) error {
	req.setRequestID(uuid.NewString())
	return decodeError(c.client.Call(ServiceName+"."+method, req, resp))
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Start", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue creates a transfer.
func (c *Client) Enqueue(req api.EnqueueRequest) (api.Transfer, error) {
	var resp TransferResponse
	if err := c.call("Enqueue", &EnqueueRequest{Transfer: req}, &resp); err != nil {
		return api.Transfer{}, err
	}
	return resp.Transfer, nil
}

// Pause pauses the queue and returns the resulting running status.
func (c *Client) Pause() (string, error) {
	var resp EngineResponse
	if err := c.call("Pause", &Empty{}, &resp); err != nil {
		return "", err
	}
	return resp.Running, nil
}

// Resume resumes the queue and returns the resulting running status.
func (c *Client) Resume() (string, error) {
	var resp EngineResponse
	if err := c.call("Resume", &Empty{}, &resp); err != nil {
		return "", err
	}
	return resp.Running, nil
}

// Cancel cancels a transfer.
func (c *Client) Cancel(id int64) (api.Transfer, error) {
	return c.transferCall("Cancel", id)
}

// Restart requeues a transfer from its last successful file.
func (c *Client) Restart(id int64) (api.Transfer, error) {
	return c.transferCall("Restart", id)
}

// Resubmit requeues a transfer from scratch.
func (c *Client) Resubmit(id int64) (api.Transfer, error) {
	return c.transferCall("Resubmit", id)
}

// Describe returns a transfer with its attempts.
func (c *Client) Describe(id int64) (api.Transfer, error) {
	return c.transferCall("Describe", id)
}

func (c *Client) transferCall(method string, id int64) (api.Transfer, error) {
	var resp TransferResponse
	if err := c.call(method, &IDRequest{ID: id}, &resp); err != nil {
		return api.Transfer{}, err
	}
	return resp.Transfer, nil
}

// Remove deletes a transfer and its history.
func (c *Client) Remove(id int64) error {
	return c.call("Remove", &IDRequest{ID: id}, &Ack{})
}

// Purge deletes history by mode and returns the number of transfers removed.
func (c *Client) Purge(mode string) (int64, error) {
	var resp CountResponse
	if err := c.call("Purge", &PurgeRequest{Mode: mode}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// QueueList returns one queue view.
func (c *Client) QueueList(view string, limit int) ([]api.Transfer, error) {
	var resp TransfersResponse
	if err := c.call("QueueList", &QueueListRequest{View: view, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

// Items pages through a transfer's items.
func (c *Client) Items(req ItemsRequest) (api.ItemPage, error) {
	var resp api.ItemPage
	if err := c.call("Items", &req, &resp); err != nil {
		return api.ItemPage{}, err
	}
	return resp, nil
}

// VaultStatus reports the vault state.
func (c *Client) VaultStatus() (api.VaultStatus, error) {
	var resp api.VaultStatus
	if err := c.call("VaultStatus", &Empty{}, &resp); err != nil {
		return api.VaultStatus{}, err
	}
	return resp, nil
}

// VaultUnlock validates the pass phrase.
func (c *Client) VaultUnlock(phrase string) error {
	return c.call("VaultUnlock", &PhraseRequest{PassPhrase: phrase}, &Ack{})
}

// VaultChange rotates the pass phrase.
func (c *Client) VaultChange(phrase string) error {
	return c.call("VaultChange", &PhraseRequest{PassPhrase: phrase}, &Ack{})
}

// VaultReset deletes every account and the stored pass phrase.
func (c *Client) VaultReset() error {
	return c.call("VaultReset", &Empty{}, &Ack{})
}

// AccountSave adds or updates a grid account.
func (c *Client) AccountSave(spec vault.AccountSpec) (api.Account, error) {
	var resp AccountResponse
	if err := c.call("AccountSave", &AccountRequest{Account: spec}, &resp); err != nil {
		return api.Account{}, err
	}
	return resp.Account, nil
}

// AccountDelete removes a grid account.
func (c *Client) AccountDelete(id int64) error {
	return c.call("AccountDelete", &IDRequest{ID: id}, &Ack{})
}

// Accounts lists grid accounts.
func (c *Client) Accounts() ([]api.Account, error) {
	var resp AccountsResponse
	if err := c.call("Accounts", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// SyncSave adds or updates a synchronization.
func (c *Client) SyncSave(spec synch.Spec) (api.Synchronization, error) {
	var resp SyncResponse
	if err := c.call("SyncSave", &SyncRequest{Sync: spec}, &resp); err != nil {
		return api.Synchronization{}, err
	}
	return resp.Sync, nil
}

// SyncDelete removes a synchronization.
func (c *Client) SyncDelete(id int64) error {
	return c.call("SyncDelete", &IDRequest{ID: id}, &Ack{})
}

// Syncs lists synchronizations.
func (c *Client) Syncs() ([]api.Synchronization, error) {
	var resp SyncsResponse
	if err := c.call("Syncs", &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Syncs, nil
}

// SyncTrigger enqueues a synchronization run. The transfer is nil when a run
// was already pending.
func (c *Client) SyncTrigger(id int64) (*api.Transfer, error) {
	var resp TriggerResponse
	if err := c.call("SyncTrigger", &IDRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Transfer, nil
}
