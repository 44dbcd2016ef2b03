package askscot

import (
	"context"
	"fmt"
	"hash"
	"hash/crc32"
	"math"
	"sync"
)

// eventHandler processes a single routed event
type eventHandler func(e RoutedEvent)

type partitionRouter struct {
	log SLogger

	// eventQueues with partition keyed by the hash of the event's channel id so that
	// events of a channel are handled by the same worker and get their replies in order
	eventQueues []chan RoutedEvent

	// workers tracks running partition workers
	workers sync.WaitGroup

	// hash function to direct event processing to partitions
	hasher   hash.Hash32
	hashMask int

	*instrumenter
}

func newPartitionRouter(partitionCount int, queueBufferSize int, log SLogger, instrumenter *instrumenter) (pr *partitionRouter, err error) {
	if !isPowerOfTwo(partitionCount) {
		return nil, fmt.Errorf("A partition router can only work with a partitionCount that is a power of two but was [%d]", partitionCount)
	}

	if queueBufferSize < 0 {
		return nil, fmt.Errorf("A partition router can only work with a queueBufferSize that is zero or more but was [%d]", queueBufferSize)
	}

	pr = new(partitionRouter)
	pr.eventQueues = make([]chan RoutedEvent, partitionCount)
	for i := range pr.eventQueues {
		pr.eventQueues[i] = make(chan RoutedEvent, queueBufferSize)
	}
	pr.hasher = crc32.NewIEEE()
	pr.hashMask = hashMask(partitionCount)
	pr.log = log
	pr.instrumenter = instrumenter

	return pr, nil
}

// start starts one worker per partition, each handling its partition's events with handle
func (pr *partitionRouter) start(handle eventHandler) {
	for i, q := range pr.eventQueues {
		pr.workers.Add(1)

		go func(partition int, queue <-chan RoutedEvent) {
			defer pr.workers.Done()

			for e := range queue {
				handle(e)
			}

			pr.log.Debugf("Worker for partition [%d] terminated\n", partition)
		}(i, q)
	}
}

// stop closes all partition queues and waits for the workers to finish processing what's left.
// routeEvent must not be called after stop
func (pr *partitionRouter) stop() {
	for _, q := range pr.eventQueues {
		close(q)
	}

	pr.workers.Wait()
}

// routeEvent routes the event processing to the partition of its channel
func (pr *partitionRouter) routeEvent(e RoutedEvent) {
	partition := pr.partitionForChannel(e.ChannelID)

	pr.log.Debugf("Dispatching [%s] event on channel [%s] to partition [%d]\n", e.Kind, e.ChannelID, partition)
	d := measure(func() {
		pr.eventQueues[partition] <- e
	})

	pr.dispatched(context.Background(), d)
}

// partitionForChannel returns the partition index for a given channel ID
func (pr *partitionRouter) partitionForChannel(channelID string) (partition int) {
	pr.hasher.Reset()
	pr.hasher.Write([]byte(channelID))
	res := pr.hasher.Sum32()

	// Keep only the rightmost bits so we have a max equal to the partition count
	return int(res) & pr.hashMask
}

// isPowerOfTwo returns true if val is a power of two or false if not
func isPowerOfTwo(val int) bool {
	return (val != 0) && (val&(val-1)) == 0
}

// hashMask builds a mask for a partitionCount (which should be a power of two) to get a hash value
// that is in the range of the number of partitions we have
func hashMask(partitionCount int) int {
	maskSize := int(math.Log2(float64(partitionCount)))
	mask := 0
	for i := 0; i < maskSize; i++ {
		mask = mask<<1 | 1
	}

	return mask
}
