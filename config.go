package armature

import (
	"io"

	"github.com/armature-emu/armature/api"
	"github.com/armature-emu/armature/internal/engine/jit"
	"github.com/armature-emu/armature/internal/logging"
)

// HighVectorBase is the exception vector base selected by the CP15 V bit.
const HighVectorBase uint32 = 0xffff0000

// LogScope selects the events written to the writer of WithLogWriter.
type LogScope = logging.LogScopes

const (
	LogScopeCompile    LogScope = logging.LogScopeCompile
	LogScopeInvalidate LogScope = logging.LogScopeInvalidate
	LogScopeException  LogScope = logging.LogScopeException
	LogScopeHalt       LogScope = logging.LogScopeHalt
	LogScopeAll        LogScope = logging.LogScopeAll
)

// Config controls core behavior, with the defaults of each core as NewConfigARM9
// and NewConfigARM7. A Config is immutable: every With method returns a copy.
type Config struct {
	name            string
	variant         api.Variant
	jit             bool
	native          bool
	vectorBase      uint32
	maxInstructions int
	optimize        bool
	chainBudget     uint64
	logWriter       io.Writer
	logScopes       logging.LogScopes
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &Config{
	optimize:    true,
	chainBudget: jit.DefaultChainBudget,
	logScopes:   logging.LogScopeAll,
}

// clone ensures all fields are copied even if nil.
func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// NewConfigARM9 returns the configuration of the ARMv5TE (ARM946E-S) core: high
// exception vectors, executed by the JIT with the optimizer enabled.
//
// The JIT uses the portable threaded backend. Use WithNativeBackend to generate
// host code instead.
func NewConfigARM9() *Config {
	ret := engineLessConfig.clone()
	ret.name = "arm9"
	ret.variant = api.VariantARMv5TE
	ret.vectorBase = HighVectorBase
	ret.jit = true
	return ret
}

// NewConfigARM7 returns the configuration of the ARMv4T (ARM7TDMI) core: low
// exception vectors, interpreted one instruction per Step.
func NewConfigARM7() *Config {
	ret := engineLessConfig.clone()
	ret.name = "arm7"
	ret.variant = api.VariantARMv4T
	return ret
}

// WithName sets the name identifying the core in logs.
func (c *Config) WithName(name string) *Config {
	ret := c.clone()
	ret.name = name
	return ret
}

// WithInterpreter executes one guest instruction per Core.Step.
func (c *Config) WithInterpreter() *Config {
	ret := c.clone()
	ret.jit = false
	ret.native = false
	return ret
}

// WithJIT compiles guest code into blocks executed by the threaded backend.
func (c *Config) WithJIT() *Config {
	ret := c.clone()
	ret.jit = true
	ret.native = false
	return ret
}

// WithNativeBackend compiles guest code into blocks of host machine code.
//
// Note: NewCore fails when NativeSupported is false or the host refuses to map
// executable memory.
func (c *Config) WithNativeBackend() *Config {
	ret := c.clone()
	ret.jit = true
	ret.native = true
	return ret
}

// WithExceptionBase sets the address of the exception vector table, 0 or
// HighVectorBase.
func (c *Config) WithExceptionBase(base uint32) *Config {
	ret := c.clone()
	ret.vectorBase = base
	return ret
}

// WithMaxBlockInstructions caps the guest instructions compiled into one JIT
// block. Zero selects the compiler default.
func (c *Config) WithMaxBlockInstructions(n int) *Config {
	ret := c.clone()
	ret.maxInstructions = n
	return ret
}

// WithOptimizer enables or disables the IR optimizer passes. Idle loop
// detection and block linking run either way. This defaults to true.
func (c *Config) WithOptimizer(enabled bool) *Config {
	ret := c.clone()
	ret.optimize = enabled
	return ret
}

// WithChainBudget sets how many guest cycles one Core.Step may spend following
// links between JIT blocks. One means a single block per Step.
func (c *Config) WithChainBudget(cycles uint64) *Config {
	ret := c.clone()
	ret.chainBudget = cycles
	return ret
}

// WithLogWriter writes one line per core event to w: blocks compiled and
// invalidated, exceptions entered and halts. Passing scopes restricts the
// events logged. A nil writer disables logging, which is the default.
func (c *Config) WithLogWriter(w io.Writer, scopes ...LogScope) *Config {
	ret := c.clone()
	ret.logWriter = w
	ret.logScopes = logging.LogScopeAll
	if len(scopes) > 0 {
		ret.logScopes = logging.LogScopeNone
		for _, s := range scopes {
			ret.logScopes |= s
		}
	}
	return ret
}
