package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/loopback/pkg/loopback"
)

// Factory creates pipelines and keeps track of the live ones so that
// endpoints can be looked up by id, e.g. by a signaling server.
type Factory struct {
	cfg           Config
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewFactory creates a pipeline factory.
func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Factory{
		cfg:           cfg,
		loggerFactory: lf,
		log:           lf.NewLogger("media"),
		pipelines:     make(map[string]*Pipeline),
	}, nil
}

// NewPipeline creates an empty pipeline with its own WebRTC API.
func (f *Factory) NewPipeline(_ context.Context) (loopback.Pipeline, error) {
	api, err := f.newAPI()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		id:        uuid.NewString(),
		factory:   f,
		api:       api,
		cfg:       f.cfg,
		log:       f.log,
		endpoints: make(map[string]*WebRTCEndpoint),
	}

	f.mu.Lock()
	f.pipelines[p.id] = p
	f.mu.Unlock()

	f.log.Infof("pipeline %s created", p.id)
	return p, nil
}

// Endpoint finds an endpoint in any live pipeline.
func (f *Factory) Endpoint(id string) (loopback.Endpoint, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.pipelines {
		if ep, ok := p.lookup(id); ok {
			return ep, true
		}
	}
	return nil, false
}

// Pipelines returns the number of live pipelines.
func (f *Factory) Pipelines() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pipelines)
}

func (f *Factory) forget(id string) {
	f.mu.Lock()
	delete(f.pipelines, id)
	f.mu.Unlock()
}

// newAPI builds the Pion API shared by every endpoint of a pipeline.
func (f *Factory) newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}

	videoFeedback := []webrtc.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
	}
	video := f.cfg.VideoCodec
	video.RTCPFeedback = append(video.RTCPFeedback, videoFeedback...)
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: video,
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register video codec: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: f.cfg.AudioCodec,
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register audio codec: %w", err)
	}

	i := &interceptor.Registry{}

	// Receiver side: request retransmissions of lost packets from the client.
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create NACK generator: %w", err)
	}
	i.Add(generator)

	// Sender side: answer the client's NACKs for looped-back packets.
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create NACK responder: %w", err)
	}
	i.Add(responder)

	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("failed to configure RTCP reports: %w", err)
	}
	if err := webrtc.ConfigureStatsInterceptor(i); err != nil {
		return nil, fmt.Errorf("failed to configure stats interceptor: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: f.loggerFactory}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(s),
	), nil
}

// Pipeline is a media graph of WebRTC endpoints.
type Pipeline struct {
	id      string
	factory *Factory
	api     *webrtc.API
	cfg     Config
	log     logging.LeveledLogger

	mu        sync.Mutex
	endpoints map[string]*WebRTCEndpoint
	released  bool
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string {
	return p.id
}

// NewEndpoint creates a WebRTC endpoint owned by the pipeline.
func (p *Pipeline) NewEndpoint(_ context.Context, kind loopback.EndpointKind) (loopback.Endpoint, error) {
	if kind != loopback.EndpointWebRTC {
		return nil, fmt.Errorf("unsupported endpoint kind %q", kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, fmt.Errorf("pipeline %s: %w", p.id, loopback.ErrReleased)
	}

	ep, err := newWebRTCEndpoint(p)
	if err != nil {
		return nil, err
	}
	p.endpoints[ep.id] = ep
	p.log.Debugf("endpoint %s created in pipeline %s", ep.id, p.id)
	return ep, nil
}

// Endpoint returns the endpoint with the given id.
func (p *Pipeline) Endpoint(id string) (loopback.Endpoint, bool) {
	ep, ok := p.lookup(id)
	if !ok {
		return nil, false
	}
	return ep, true
}

func (p *Pipeline) lookup(id string) (*WebRTCEndpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[id]
	return ep, ok
}

// Release closes every endpoint of the pipeline. Calling it more than
// once is a no-op.
func (p *Pipeline) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	endpoints := make([]*WebRTCEndpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.endpoints = map[string]*WebRTCEndpoint{}
	p.mu.Unlock()

	var errs []error
	for _, ep := range endpoints {
		if err := ep.Close(); err != nil {
			errs = append(errs, fmt.Errorf("endpoint %s: %w", ep.id, err))
		}
	}
	p.factory.forget(p.id)
	p.log.Infof("pipeline %s released (%d endpoints)", p.id, len(endpoints))
	return errors.Join(errs...)
}
