// Package core provides the main EverMem client and the memory pipeline.
package core

import (
	"context"
	"sync"
)

// AsyncClient provides asynchronous EverMem operations.
//
// It wraps the synchronous Client and executes all operations in separate
// goroutines, making it suitable for callers that want to overlap slow
// write pipelines with other work (a chat loop answering while the
// previous turn is being memorized, for example).
//
// All async methods return channels that will receive the result when the
// operation completes. The client tracks all goroutines and provides
// Wait() to ensure all operations finish.
//
// Example:
//
//	asyncClient, _ := core.NewAsyncClient(config)
//	defer asyncClient.Close()
//
//	resultChan := asyncClient.WriteAsync(ctx, turns, userMsg, assistantMsg,
//	    core.WithUserID("user_001"))
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// NewAsyncClient creates a new asynchronous EverMem client.
//
// Parameters:
//   - cfg: EverMem configuration
//
// Returns:
//   - *AsyncClient: The asynchronous client instance
//   - error: Error if configuration is invalid or initialization fails
func NewAsyncClient(cfg *Config) (*AsyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AsyncClient{
		Client: client,
	}, nil
}

// WriteResult contains the result of an asynchronous Write operation.
type WriteResult struct {
	// Memories holds the stored or rewritten memories.
	Memories []*Memory

	// Error is the error returned by the operation (nil on success).
	Error error
}

// RetrieveResult contains the result of an asynchronous Retrieve operation.
type RetrieveResult struct {
	// Memories is the ranked list of matching memories.
	Memories []*Memory

	// Error is the error returned by the operation (nil on success).
	Error error
}

// ForgetUserResult contains the result of an asynchronous ForgetUser
// operation.
type ForgetUserResult struct {
	// Deleted is the number of metadata rows removed.
	Deleted int

	// Error is the error returned by the operation (nil on success).
	Error error
}

// WriteAsync runs the write pipeline asynchronously.
//
// The operation executes in a separate goroutine and returns its result
// via a channel.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - turns: Recent conversation history, oldest first
//   - userMessage: The latest user message
//   - assistantMessage: The latest assistant reply
//   - opts: Optional write options (UserID, Mode)
//
// Returns:
//   - <-chan *WriteResult: Channel that receives the stored memories and error
func (ac *AsyncClient) WriteAsync(ctx context.Context, turns []Turn, userMessage, assistantMessage string, opts ...WriteOption) <-chan *WriteResult {
	resultChan := make(chan *WriteResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		memories, err := ac.Write(ctx, turns, userMessage, assistantMessage, opts...)
		resultChan <- &WriteResult{
			Memories: memories,
			Error:    err,
		}
		close(resultChan)
	}()

	return resultChan
}

// RetrieveAsync searches memories asynchronously.
//
// The operation executes in a separate goroutine and returns its result
// via a channel.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - query: Search query text
//   - topK: Maximum number of results
//   - opts: Optional retrieve options (UserID, Filter)
//
// Returns:
//   - <-chan *RetrieveResult: Channel that receives the memories and error
func (ac *AsyncClient) RetrieveAsync(ctx context.Context, query string, topK int, opts ...RetrieveOption) <-chan *RetrieveResult {
	resultChan := make(chan *RetrieveResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		memories, err := ac.Retrieve(ctx, query, topK, opts...)
		resultChan <- &RetrieveResult{
			Memories: memories,
			Error:    err,
		}
		close(resultChan)
	}()

	return resultChan
}

// ForgetUserAsync removes a user's memories asynchronously.
//
// The operation executes in a separate goroutine and returns its result
// via a channel.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - userID: The user scope to clear
//
// Returns:
//   - <-chan *ForgetUserResult: Channel that receives the deletion count and error
func (ac *AsyncClient) ForgetUserAsync(ctx context.Context, userID string) <-chan *ForgetUserResult {
	resultChan := make(chan *ForgetUserResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		deleted, err := ac.ForgetUser(ctx, userID)
		resultChan <- &ForgetUserResult{
			Deleted: deleted,
			Error:   err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait waits for all asynchronous operations to complete.
//
// This method blocks until all goroutines started by async methods have
// finished. It should be called before program exit to ensure all
// operations complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close closes the asynchronous client.
//
// It first waits for all asynchronous operations to complete, then closes
// the underlying client.
func (ac *AsyncClient) Close() error {
	ac.Wait()
	return ac.Client.Close()
}
