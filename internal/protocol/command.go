package protocol

// Command is one outbound user intent, validated before it is framed.
type Command interface {
	// Validate checks every field against its wire constraint.
	Validate() error
}

// AuthCommand requests authentication of a user.
type AuthCommand struct {
	Username    string
	DisplayName string
	Secret      string
}

func (c AuthCommand) Validate() error {
	if err := ValidateUsername(c.Username); err != nil {
		return err
	}
	if err := ValidateDisplayName(c.DisplayName); err != nil {
		return err
	}
	return ValidateSecret(c.Secret)
}

// JoinCommand requests a switch to another channel.
type JoinCommand struct {
	Channel     string
	DisplayName string
}

func (c JoinCommand) Validate() error {
	if err := ValidateChannel(c.Channel); err != nil {
		return err
	}
	return ValidateDisplayName(c.DisplayName)
}

// MsgCommand carries one chat message to the current channel.
type MsgCommand struct {
	DisplayName string
	Content     string
}

func (c MsgCommand) Validate() error {
	if err := ValidateDisplayName(c.DisplayName); err != nil {
		return err
	}
	return ValidateContent(c.Content)
}

// ByeCommand announces the client is leaving.
type ByeCommand struct {
	DisplayName string
}

func (c ByeCommand) Validate() error {
	return ValidateDisplayName(c.DisplayName)
}

// ErrCommand reports a local protocol fault to the peer.
type ErrCommand struct {
	DisplayName string
	Content     string
}

func (c ErrCommand) Validate() error {
	if err := ValidateDisplayName(c.DisplayName); err != nil {
		return err
	}
	return ValidateContent(c.Content)
}
