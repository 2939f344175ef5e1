// Package media is a minimal media backend on Pion WebRTC implementing
// loopback.PipelineFactory.
//
// A Pipeline owns WebRTC endpoints. Each endpoint answers one client offer
// and forwards the RTP it receives to every endpoint it is connected to,
// itself included:
//
//	factory, _ := media.NewFactory(media.DefaultConfig())
//	pipeline, _ := factory.NewPipeline(ctx)
//	defer pipeline.Release()
//
//	ep, _ := pipeline.NewEndpoint(ctx, loopback.EndpointWebRTC)
//	_ = ep.Connect(ep) // loopback
//	answer, _ := ep.ProcessOffer(ctx, offerSDP)
//
// Forwarding happens at the RTP level, so a sink only receives a kind whose
// codec matches its own outgoing track. Video sources are asked for key
// frames periodically with RTCP PLI so late sinks can start decoding.
package media
