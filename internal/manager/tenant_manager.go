// internal/manager/tenant_manager.go
package manager

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"wahub/internal/consumer"
	"wahub/internal/messaging"
	"wahub/internal/storage"
	"wahub/internal/worker"
)

// TenantManager owns the per-tenant collaborator dispatch lifecycle:
// queue declaration, dispatcher start/stop and concurrency persistence.
// Company credential rows are managed by the ops API, not here.
type TenantManager struct {
	rabbitConn *amqp.Connection
	rabbit     *messaging.RabbitClient
	storage    *storage.Storage
	dispatch   worker.DispatchFunc

	mu        sync.RWMutex
	consumers map[uuid.UUID]*consumer.Consumer
}

func NewTenantManager(
	rabbitConn *amqp.Connection,
	rabbit *messaging.RabbitClient,
	storage *storage.Storage,
	dispatch worker.DispatchFunc,
) *TenantManager {
	return &TenantManager{
		rabbitConn: rabbitConn,
		rabbit:     rabbit,
		storage:    storage,
		dispatch:   dispatch,
		consumers:  make(map[uuid.UUID]*consumer.Consumer),
	}
}

// EnsureTenant declares the event queues and spawns the dispatcher for a
// company. Idempotent.
func (tm *TenantManager) EnsureTenant(companyID uuid.UUID, workers int) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.consumers[companyID]; exists {
		return nil // already running
	}

	if err := tm.rabbit.DeclareQueue(companyID.String()); err != nil {
		return err
	}

	pool := worker.NewPool(companyID.String(), workers, tm.dispatch)
	c, err := consumer.StartConsumer(tm.rabbitConn, companyID.String(), pool)
	if err != nil {
		return err
	}
	tm.consumers[companyID] = c

	log.Printf("Tenant %s dispatcher started", companyID)
	return nil
}

// RemoveTenant stops the dispatcher and deletes the event queue.
func (tm *TenantManager) RemoveTenant(companyID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	c, exists := tm.consumers[companyID]
	if !exists {
		return nil // nothing to remove
	}

	c.Stop()

	queueName := messaging.QueueName(companyID.String())
	_, err := tm.rabbit.GetChannel().QueueDelete(queueName, false, false, false)
	if err != nil {
		log.Printf("Failed to delete queue %s: %v", queueName, err)
	}

	delete(tm.consumers, companyID)

	log.Printf("Tenant %s dispatcher removed", companyID)
	return nil
}

// ShutdownAll stops every dispatcher.
func (tm *TenantManager) ShutdownAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for id, c := range tm.consumers {
		c.Stop()
		log.Printf("Stopped tenant %s", id)
	}
	tm.consumers = make(map[uuid.UUID]*consumer.Consumer)
}

// ListTenantIDs returns all currently registered company UUIDs
func (tm *TenantManager) ListTenantIDs() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	ids := make([]string, 0, len(tm.consumers))
	for id := range tm.consumers {
		ids = append(ids, id.String())
	}
	return ids
}

// SetWorkerCount rescales a tenant's dispatcher and persists the level.
func (tm *TenantManager) SetWorkerCount(companyID string, n int) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id, err := uuid.Parse(companyID)
	if err != nil {
		return err
	}

	c, ok := tm.consumers[id]
	if !ok {
		return fmt.Errorf("tenant not found: %s", companyID)
	}

	c.SetWorkerCount(n)

	if err := tm.storage.UpdateCompanyConcurrency(companyID, n); err != nil {
		return fmt.Errorf("failed to persist concurrency: %w", err)
	}
	return nil
}
