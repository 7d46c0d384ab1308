package pipeline

import "sync"

// shutdown drains the stages behind the reader in dependency order once the
// reader has returned. It owns no channels; it only sequences the closing
// and waiting callbacks it is given.
//
// Close is safe for concurrent calls; the sequence executes exactly once.
type shutdown struct {
	closeStageInputs func()
	// stagesWG covers the deflate dispatcher and the fragment forwarder.
	stagesWG  *sync.WaitGroup
	inflight  *sync.WaitGroup
	release   func()
	closeSink func()
	writerWG  *sync.WaitGroup

	once sync.Once
}

// Close executes the sequence:
// 1) close the deflate and fragment queues
// 2) wait for both stage loops to stop submitting work
// 3) wait for in-flight compression tasks
// 4) release the worker pool
// 5) close the sink input so the writer sees the end of the stream
// 6) wait for the writer to drain the sink
func (s *shutdown) Close() {
	s.once.Do(func() {
		if s.closeStageInputs != nil {
			s.closeStageInputs()
		}
		// No inflight.Add can happen once the stage loops have exited.
		if s.stagesWG != nil {
			s.stagesWG.Wait()
		}
		if s.inflight != nil {
			s.inflight.Wait()
		}
		if s.release != nil {
			s.release()
		}
		if s.closeSink != nil {
			s.closeSink()
		}
		if s.writerWG != nil {
			s.writerWG.Wait()
		}
	})
}
