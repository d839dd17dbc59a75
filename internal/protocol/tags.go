package protocol

import "fmt"

// ClientPacket tags the first byte of every client→server packet.
type ClientPacket byte

const (
	ClientLogin ClientPacket = iota
	ClientTalk
	ClientWalk
	ClientRequestPositionUpdate
	ClientPickUp
	ClientDrop
	ClientCommerceStart
	ClientCommerceEnd
	ClientCommerceBuy
	ClientCommerceSell
	ClientBankStart
	ClientBankEnd
	ClientBankDeposit
	ClientBankExtract
	ClientMeditate
	ClientRequestStats
	ClientOnline
	ClientQuit

	clientPacketCount
)

// ServerPacket tags the first byte of every server→client packet. The two tag
// spaces are disjoint enums; a byte is only meaningful in its own direction.
type ServerPacket byte

const (
	ServerLogged ServerPacket = iota
	ServerConsoleMsg
	ServerChatOverHead
	ServerCharacterCreate
	ServerCharacterRemove
	ServerCharacterMove
	ServerPosUpdate
	ServerUpdateUserStats
	ServerUpdateGold
	ServerUpdateHungerAndThirst
	ServerChangeInventorySlot
	ServerChangeBankSlot
	ServerChangeNPCInventorySlot
	ServerObjectCreate
	ServerObjectDelete
	ServerMeditateToggle
	ServerCommerceInit
	ServerCommerceEnd
	ServerBankInit
	ServerBankEnd
)

var clientPacketNames = map[ClientPacket]string{
	ClientLogin:                 "Login",
	ClientTalk:                  "Talk",
	ClientWalk:                  "Walk",
	ClientRequestPositionUpdate: "RequestPositionUpdate",
	ClientPickUp:                "PickUp",
	ClientDrop:                  "Drop",
	ClientCommerceStart:         "CommerceStart",
	ClientCommerceEnd:           "CommerceEnd",
	ClientCommerceBuy:           "CommerceBuy",
	ClientCommerceSell:          "CommerceSell",
	ClientBankStart:             "BankStart",
	ClientBankEnd:               "BankEnd",
	ClientBankDeposit:           "BankDeposit",
	ClientBankExtract:           "BankExtract",
	ClientMeditate:              "Meditate",
	ClientRequestStats:          "RequestStats",
	ClientOnline:                "Online",
	ClientQuit:                  "Quit",
}

func (p ClientPacket) String() string {
	if name, ok := clientPacketNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ClientPacket(%d)", byte(p))
}

// Known reports whether the tag maps to a registered client packet.
func (p ClientPacket) Known() bool {
	return p < clientPacketCount
}
