package raknetcore

// Config enumerates the configuration surface of the core, per SPEC_FULL.md
// §6.1. OfflineConfig and CodecConfig are opaque to this package — they are
// passed through to the offline-handler and frame-encoder/decoder
// collaborators untouched.
type Config struct {
	MTU           uint16
	SendBufCap    int
	OfflineConfig any
	CodecConfig   any
	ClientGUID    uint64
	ServerGUID    uint64
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithMTU sets the initial MTU.
func WithMTU(mtu uint16) Option {
	return func(c *Config) { c.MTU = mtu }
}

// WithSendBufCap sets the outgoing buffer's frame capacity.
func WithSendBufCap(cap int) Option {
	return func(c *Config) { c.SendBufCap = cap }
}

// WithOfflineConfig attaches opaque configuration for the offline handler.
func WithOfflineConfig(cfg any) Option {
	return func(c *Config) { c.OfflineConfig = cfg }
}

// WithCodecConfig attaches opaque configuration for the frame encoder/decoder.
func WithCodecConfig(cfg any) Option {
	return func(c *Config) { c.CodecConfig = cfg }
}

// WithGUIDs sets the client and server GUIDs.
func WithGUIDs(client, server uint64) Option {
	return func(c *Config) { c.ClientGUID = client; c.ServerGUID = server }
}

// DefaultMTU is the conservative starting MTU used before path MTU discovery
// (matches the teacher's DEFAULT_MTU_SIZE).
const DefaultMTU uint16 = 576

// DefaultSendBufCap is a reasonable default outgoing-buffer capacity.
const DefaultSendBufCap = 4096

// NewConfig builds a Config from defaults plus the given options.
func NewConfig(opts ...Option) Config {
	c := Config{
		MTU:        DefaultMTU,
		SendBufCap: DefaultSendBufCap,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ServerRoleFor returns the Role this config's server side plays.
func (c Config) ServerRoleFor() Role { return ServerRole(c.ServerGUID) }

// ClientRoleFor returns the Role this config's client side plays.
func (c Config) ClientRoleFor() Role { return ClientRole(c.ClientGUID) }
