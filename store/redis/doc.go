// Package redis implements checkpoint.Store on Redis for deployments where
// several processes share checkpoint state.
//
// Each lineage is one serialized History blob. Every operation takes the
// lineage lock, reads the blob, applies the change, writes it back and
// unlocks. Two lock adapters are provided: NewSpinBackend polls SET NX
// with an owner token, NewMutexBackend uses redsync mutexes.
//
// The caller owns the Redis client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(redis.NewSpinBackend(client), redis.WithLockWait(time.Second))
//	addr, err := s.Put(ctx, checkpoint.Address{LineageID: "run-1"}, cp)
package redis
