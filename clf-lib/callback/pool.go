/*
 * Copyright 2014-2015 Jason Woods.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package callback

import (
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("callback")

// DefaultDialTimeout bounds how long a single connection attempt may take
const DefaultDialTimeout = 5 * time.Second

// DefaultDispatchTimeout is the write deadline set on a socket connection
// before each frame is sent, per the spec's 5s ceiling
const DefaultDispatchTimeout = 5 * time.Second

// pooledConn is one entry kept alive across dispatches within a run
type pooledConn struct {
	conn  net.Conn
	first bool
}

// connPool is an LRU-bounded pool of live socket connections keyed by
// "network:address" (e.g. "tcp:10.0.0.1:9000" or "unix:/run/clf.sock"),
// reusing an established connection across the dispatches of the one
// SocketDispatcher that owns it rather than dialing fresh every dispatch;
// pools are not shared between dispatchers. Bounded via github.com/hashicorp/golang-lru, the same
// constant-capacity LRU the teacher's admin package uses for its command
// history cache, sized here for socket fan-out instead.
type connPool struct {
	mu    sync.Mutex
	cache *lru.Cache
}

const defaultPoolSize = 32

func newConnPool(size int) (*connPool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}
	p := &connPool{}
	cache, err := lru.NewWithEvict(size, func(key interface{}, value interface{}) {
		if pc, ok := value.(*pooledConn); ok {
			pc.conn.Close()
		}
	})
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

// get returns a pooled connection for key, dialing a fresh one via dial if
// none is cached (for example after drop). The returned pooledConn's first
// field is true whenever the connection was freshly dialed by this call, so
// the caller knows whether to include Global vars.
func (p *connPool) get(key string, dial func() (net.Conn, error)) (*pooledConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.cache.Get(key); ok {
		pc := v.(*pooledConn)
		return &pooledConn{conn: pc.conn, first: false}, nil
	}

	conn, err := dial()
	if err != nil {
		return nil, err
	}
	pc := &pooledConn{conn: conn, first: true}
	p.cache.Add(key, pc)
	return pc, nil
}

// drop evicts key, closing its connection, e.g. after a write error
func (p *connPool) drop(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(key)
}

// closeAll closes every pooled connection, called once at the end of a run
func (p *connPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, key := range p.cache.Keys() {
		p.cache.Remove(key)
	}
}
