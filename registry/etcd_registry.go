// Etcd-backed implementation of the Registry interface.
//
// etcd acts as the distributed phonebook for IPC services:
//
//	Key:   /ipc-link/{service}/{network}://{address}
//	Value: JSON-encoded Instance
//
// Registration uses TTL leases with background KeepAlive: when a server
// dies, its lease expires and the entry disappears on its own, so stale
// endpoints never accumulate.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"ipc-link/stream"
)

const keyPrefix = "/ipc-link/"

// EtcdRegistry implements Registry on an etcd v3 cluster. The embedded
// client is safe for concurrent use, so one registry may be shared by
// several servers and callers.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints. A nil logger
// disables logging.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

func instanceKey(service string, ep stream.Endpoint) string {
	return keyPrefix + service + "/" + ep.String()
}

// Register adds an instance under the service with a TTL lease and
// starts background renewal. The lease id stays local so concurrent
// registrations through one shared registry do not race.
func (r *EtcdRegistry) Register(service string, inst Instance, ttl int64) error {
	ctx := context.Background()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, instanceKey(service, inst.Endpoint), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		r.logger.Debug("keepalive channel closed",
			zap.String("service", service),
			zap.String("endpoint", inst.Endpoint.String()))
	}()

	r.logger.Info("registered service instance",
		zap.String("service", service),
		zap.String("endpoint", inst.Endpoint.String()),
		zap.Int64("ttl", ttl))
	return nil
}

// Deregister removes an instance. Servers call it before closing their
// listener so callers stop routing to them.
func (r *EtcdRegistry) Deregister(service string, ep stream.Endpoint) error {
	_, err := r.client.Delete(context.Background(), instanceKey(service, ep))
	if err != nil {
		return err
	}
	r.logger.Info("deregistered service instance",
		zap.String("service", service),
		zap.String("endpoint", ep.String()))
	return nil
}

// Discover lists the instances currently registered for a service.
func (r *EtcdRegistry) Discover(service string) ([]Instance, error) {
	resp, err := r.client.Get(context.Background(), keyPrefix+service+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			r.logger.Warn("skipping malformed registry entry",
				zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch emits the full instance list whenever anything under the
// service prefix changes (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(service string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		watchChan := r.client.Watch(context.Background(), keyPrefix+service+"/", clientv3.WithPrefix())
		for range watchChan {
			// Re-list on any change; simpler than replaying individual events.
			instances, err := r.Discover(service)
			if err != nil {
				r.logger.Warn("watch re-list failed", zap.String("service", service), zap.Error(err))
				continue
			}
			ch <- instances
		}
	}()

	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
