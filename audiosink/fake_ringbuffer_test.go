package audiosink

// fakeRing is an in-memory RingBuffer used by the property and scenario
// tests. It has no real device: SegDone and SamplesDone only change when a
// test sets segDone or samples directly, modelling the device thread's own
// pace.
type fakeRing struct {
	spec      Spec
	acquired  bool
	flushing  bool
	mayStart  bool
	samples   uint64
	delay     uint32
	segDone   uint64
	segBase   uint64
	starts    int
	committed []uint64 // sampleOffset at each successful commit, for assertions
}

func newFakeRing(spec Spec) *fakeRing {
	return &fakeRing{spec: spec, acquired: true}
}

func (f *fakeRing) OpenDevice() error  { return nil }
func (f *fakeRing) CloseDevice() error { return nil }

func (f *fakeRing) Acquire(spec Spec) error {
	f.spec = spec
	f.acquired = true
	return nil
}
func (f *fakeRing) Release() error   { f.acquired = false; return nil }
func (f *fakeRing) IsAcquired() bool { return f.acquired }

func (f *fakeRing) Start() error         { f.starts++; return nil }
func (f *fakeRing) Pause() error         { return nil }
func (f *fakeRing) MayStart(may bool)    { f.mayStart = may }
func (f *fakeRing) SetFlushing(fl bool)  { f.flushing = fl }

func (f *fakeRing) Commit(sampleOffset *uint64, data []byte, in, out int, accum *int) (int, error) {
	if f.flushing {
		return 0, nil
	}
	f.committed = append(f.committed, *sampleOffset)
	*sampleOffset += uint64(out)
	return in, nil
}

func (f *fakeRing) SamplesDone() uint64 { return f.samples }
func (f *fakeRing) Delay() uint32       { return f.delay }

func (f *fakeRing) SegDone() uint64      { return f.segDone }
func (f *fakeRing) SegBase() uint64      { return f.segBase }
func (f *fakeRing) SamplesPerSeg() int   { return f.spec.SamplesPerSeg() }
func (f *fakeRing) Spec() Spec           { return f.spec }
func (f *fakeRing) SetCallback(PullCallback) {}
