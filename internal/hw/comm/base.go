// Package comm provides base communication interfaces and implementations
// shared by the Modbus and serial hardware backends.
package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"beamctl/internal/logging"
)

// BaseCommunication implements the bookkeeping every transport backend
// needs: status tracking, event dispatch, and a generic retry-with-timeout
// helper.
type BaseCommunication struct {
	config        ConnectionConfig
	status        ConnectionStatus
	lastError     error
	eventHandlers []EventHandler
	errorHandler  ErrorHandler
	mutex         sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	logger        *logging.Logger
}

func NewBaseCommunication(config ConnectionConfig) *BaseCommunication {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseCommunication{
		config:        config,
		status:        StatusDisconnected,
		eventHandlers: make([]EventHandler, 0),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logging.GetLogger("base_communication"),
	}
}

func (bc *BaseCommunication) GetStatus() ConnectionStatus {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.status
}

func (bc *BaseCommunication) SetLastError(err error) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	bc.lastError = err
}

func (bc *BaseCommunication) GetLastError() error {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.lastError
}

func (bc *BaseCommunication) IsConnected() bool {
	return bc.GetStatus() == StatusConnected
}

func (bc *BaseCommunication) AddEventHandler(handler EventHandler) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	bc.eventHandlers = append(bc.eventHandlers, handler)
}

func (bc *BaseCommunication) RemoveEventHandler(handler EventHandler) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	for i, h := range bc.eventHandlers {
		if h == handler {
			bc.eventHandlers = append(bc.eventHandlers[:i], bc.eventHandlers[i+1:]...)
			break
		}
	}
}

func (bc *BaseCommunication) SetErrorHandler(handler ErrorHandler) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	bc.errorHandler = handler
}

func (bc *BaseCommunication) emitEvent(callback func(EventHandler)) {
	bc.mutex.RLock()
	handlers := make([]EventHandler, len(bc.eventHandlers))
	copy(handlers, bc.eventHandlers)
	bc.mutex.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bc.logger.Error("event handler panic", "panic", r)
				}
			}()
			callback(handler)
		}()
	}
}

func (bc *BaseCommunication) EmitConnected()    { bc.emitEvent(func(h EventHandler) { h.OnConnected() }) }
func (bc *BaseCommunication) EmitDisconnected() { bc.emitEvent(func(h EventHandler) { h.OnDisconnected() }) }
func (bc *BaseCommunication) EmitError(err error) {
	bc.emitEvent(func(h EventHandler) { h.OnError(err) })
}
func (bc *BaseCommunication) EmitDataReceived(address string, data []byte) {
	bc.emitEvent(func(h EventHandler) { h.OnDataReceived(address, data) })
}
func (bc *BaseCommunication) EmitDataWritten(address string, data []byte) {
	bc.emitEvent(func(h EventHandler) { h.OnDataWritten(address, data) })
}

func (bc *BaseCommunication) SetStatus(status ConnectionStatus) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	bc.status = status
}

func (bc *BaseCommunication) HandleWithError(err error) error {
	bc.SetLastError(err)

	if bc.errorHandler != nil {
		err = bc.errorHandler.HandleError(err)
	}

	bc.EmitError(err)
	return err
}

// RetryWithTimeout retries operation up to config.RetryCount times, backing
// off by config.RetryInterval (or the error handler's custom delay) between
// attempts, and gives up early if the error handler says not to retry.
func (bc *BaseCommunication) RetryWithTimeout(ctx context.Context, operation func() error) error {
	var lastErr error

	for i := 0; i <= bc.config.RetryCount; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if bc.errorHandler != nil && !bc.errorHandler.ShouldRetry(err) {
			return err
		}

		if i == bc.config.RetryCount {
			break
		}

		delay := bc.config.RetryInterval
		if bc.errorHandler != nil {
			if customDelay := bc.errorHandler.GetRetryDelay(err); customDelay > 0 {
				delay = customDelay
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		bc.logger.Warn("retry after error", "attempt", i+1, "max_attempts", bc.config.RetryCount, "error", err)
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", bc.config.RetryCount, lastErr)
}

func (bc *BaseCommunication) Context() context.Context { return bc.ctx }
func (bc *BaseCommunication) Cancel()                  { bc.cancel() }

// DefaultErrorHandler retries network and timeout errors using the
// backend's configured retry interval.
type DefaultErrorHandler struct{}

func (de *DefaultErrorHandler) HandleError(err error) error { return err }

func (de *DefaultErrorHandler) ShouldRetry(err error) bool {
	return isNetworkError(err) || isTimeoutError(err)
}

func (de *DefaultErrorHandler) GetRetryDelay(err error) time.Duration { return 0 }

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
