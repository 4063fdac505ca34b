package wipe

import (
	"sync"
)

// BufferPool управляет пулом буферов по классам размеров
type BufferPool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

var globalBufferPool = &BufferPool{
	pools: make(map[int]*sync.Pool),
}

// GetBuffer получает буфер длины size из пула или создает новый
func GetBuffer(size int) []byte {
	if size <= 0 {
		return nil
	}

	return globalBufferPool.getBuffer(size)
}

// PutBuffer возвращает буфер в пул
func PutBuffer(buf []byte) {
	if cap(buf) == 0 {
		return
	}

	globalBufferPool.putBuffer(buf)
}

func (bp *BufferPool) getBuffer(size int) []byte {
	poolSize := bp.getPoolSize(size)

	bp.mu.RLock()
	pool, exists := bp.pools[poolSize]
	bp.mu.RUnlock()

	if !exists {
		bp.mu.Lock()
		// Double-check
		pool, exists = bp.pools[poolSize]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return make([]byte, poolSize)
				},
			}
			bp.pools[poolSize] = pool
		}
		bp.mu.Unlock()
	}

	buf := pool.Get().([]byte)
	return buf[:size]
}

func (bp *BufferPool) putBuffer(buf []byte) {
	capacity := cap(buf)
	poolSize := bp.getPoolSize(capacity)
	// Чужие буферы (не из пула) не принимаем
	if poolSize != capacity {
		return
	}

	bp.mu.RLock()
	pool, exists := bp.pools[poolSize]
	bp.mu.RUnlock()

	if exists {
		pool.Put(buf[:capacity])
	}
}

// getPoolSize определяет класс размера: степени двойки до 16MB, выше округление до 4KB
func (bp *BufferPool) getPoolSize(size int) int {
	sizes := []int{1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216}

	for _, poolSize := range sizes {
		if size <= poolSize {
			return poolSize
		}
	}

	return ((size + 4095) / 4096) * 4096
}
