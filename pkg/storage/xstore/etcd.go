package xstore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdClient 定义 etcd 存储需要的操作，*clientv3.Client 实现了此接口。
// 接口方法与 clientv3.KV / clientv3.Lease 保持一致，便于注入 mock。
type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Close() error
}

var _ etcdClient = (*clientv3.Client)(nil)

// EtcdStore 基于 etcd 的 AtomicStore 实现。
//
// SetNX 使用 CreateRevision == 0 作为"不存在"条件，TTL 通过 Lease 实现；
// CompareAndDelete 在同一事务内读取 Lease 并删除 key，删除成功后回收 Lease。
// etcd 没有列表语义，限流器与队列需要 Redis。
type EtcdStore struct {
	client   etcdClient
	borrowed bool
	closed   atomic.Bool
}

var _ AtomicStore = (*EtcdStore)(nil)

// NewEtcd 创建 etcd 存储。
func NewEtcd(client *clientv3.Client, opts ...Option) (*EtcdStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newEtcd(client, opts...), nil
}

func newEtcd(client etcdClient, opts ...Option) *EtcdStore {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &EtcdStore{client: client, borrowed: o.borrowed}
}

func (s *EtcdStore) check(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		return ErrNilContext
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// SetNX 仅当 key 不存在时写入。
func (s *EtcdStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	if ttl < 0 {
		return false, ErrInvalidTTL
	}

	var putOpts []clientv3.OpOption
	var leaseID clientv3.LeaseID
	if ttl > 0 {
		lease, err := s.client.Grant(ctx, ttlSeconds(ttl))
		if err != nil {
			return false, fmt.Errorf("xstore: grant lease for %q: %w", key, err)
		}
		leaseID = lease.ID
		putOpts = append(putOpts, clientv3.WithLease(leaseID))
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value, putOpts...)).
		Commit()
	if err != nil {
		s.revoke(leaseID)
		return false, fmt.Errorf("xstore: setnx %q: %w", key, err)
	}
	if !resp.Succeeded {
		s.revoke(leaseID)
		return false, nil
	}
	return true, nil
}

// CompareAndDelete 仅当值匹配时删除 key。
func (s *EtcdStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", value)).
		Then(clientv3.OpGet(key), clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, fmt.Errorf("xstore: compare-and-delete %q: %w", key, err)
	}
	if !resp.Succeeded {
		return false, nil
	}

	if len(resp.Responses) > 0 {
		if rng := resp.Responses[0].GetResponseRange(); rng != nil && len(rng.Kvs) > 0 {
			s.revoke(clientv3.LeaseID(rng.Kvs[0].Lease))
		}
	}
	return true, nil
}

// Ping 通过一次轻量读检查连接。
func (s *EtcdStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.client.Get(ctx, "xstore-health-check", clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("xstore: etcd ping: %w", err)
	}
	return nil
}

// Close 关闭存储。重复关闭返回 ErrClosed。
func (s *EtcdStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if s.borrowed {
		return nil
	}
	return s.client.Close()
}

// revoke 尽力回收租约；失败时租约到期后由 etcd 自动回收。
func (s *EtcdStore) revoke(id clientv3.LeaseID) {
	if id == clientv3.NoLease {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
	defer cancel()
	_, _ = s.client.Revoke(ctx, id)
}

// revokeTimeout 租约回收使用独立上下文，避免调用方 ctx 已取消时租约残留到 TTL。
const revokeTimeout = 3 * time.Second

// ttlSeconds 将 TTL 向上取整为秒，确保 key 不会早于调用方预期过期。
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
