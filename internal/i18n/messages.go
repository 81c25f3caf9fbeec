package i18n

import "golang.org/x/text/language"

// Message keys.
const (
	KeyOnlyInGroups      = "usage_only_in_groups"
	KeyNotInChat         = "not_in_chat"
	KeyShouldBeAdmin     = "u_should_be_admin"
	KeyConnNotAllowed    = "conn_not_allowed"
	KeyConnected         = "connected"
	KeyDisconnected      = "disconnected"
	KeyNotConnected      = "not_connected"
	KeyConnectedTo       = "connected_to"
	KeyConnectUsage      = "connect_usage"
	KeyAllowConnectOn    = "allow_users_connect_enabled"
	KeyAllowConnectOff   = "allow_users_connect_disabled"
	KeyAllowConnectUsage = "allow_users_connect_usage"
)

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyOnlyInGroups:      "This command works only in groups, or after you connect to one with /connect.",
		KeyNotInChat:         "You are not a member of the connected chat anymore. Reconnect with /connect.",
		KeyShouldBeAdmin:     "You should be an admin in the connected chat to do this.",
		KeyConnNotAllowed:    "Connecting to this chat is allowed only for admins.",
		KeyConnected:         "Connected to %s.",
		KeyDisconnected:      "Disconnected from %s.",
		KeyNotConnected:      "You are not connected to any chat.",
		KeyConnectedTo:       "You are connected to %s (%s).",
		KeyConnectUsage:      "Usage: /connect <chat id>, or send /connect in the group.",
		KeyAllowConnectOn:    "Users can now connect to %s.",
		KeyAllowConnectOff:   "Only admins can connect to %s now.",
		KeyAllowConnectUsage: "Usage: /allowusersconnect on|off",
	},
	language.Russian: {
		KeyOnlyInGroups:      "Эта команда работает только в группах или после подключения к группе через /connect.",
		KeyNotInChat:         "Вы больше не состоите в подключённом чате. Подключитесь заново через /connect.",
		KeyShouldBeAdmin:     "Для этого вы должны быть администратором подключённого чата.",
		KeyConnNotAllowed:    "Подключаться к этому чату могут только администраторы.",
		KeyConnected:         "Подключено к %s.",
		KeyDisconnected:      "Отключено от %s.",
		KeyNotConnected:      "Вы не подключены ни к одному чату.",
		KeyConnectedTo:       "Вы подключены к %s (%s).",
		KeyConnectUsage:      "Использование: /connect <id чата> или отправьте /connect в группе.",
		KeyAllowConnectOn:    "Теперь пользователи могут подключаться к %s.",
		KeyAllowConnectOff:   "Теперь к %s могут подключаться только администраторы.",
		KeyAllowConnectUsage: "Использование: /allowusersconnect on|off",
	},
	language.Spanish: {
		KeyOnlyInGroups:      "Este comando solo funciona en grupos o después de conectarte a uno con /connect.",
		KeyNotInChat:         "Ya no eres miembro del chat conectado. Vuelve a conectarte con /connect.",
		KeyShouldBeAdmin:     "Debes ser administrador del chat conectado para hacer esto.",
		KeyConnNotAllowed:    "Solo los administradores pueden conectarse a este chat.",
		KeyConnected:         "Conectado a %s.",
		KeyDisconnected:      "Desconectado de %s.",
		KeyNotConnected:      "No estás conectado a ningún chat.",
		KeyConnectedTo:       "Estás conectado a %s (%s).",
		KeyConnectUsage:      "Uso: /connect <id del chat>, o envía /connect en el grupo.",
		KeyAllowConnectOn:    "Ahora los usuarios pueden conectarse a %s.",
		KeyAllowConnectOff:   "Ahora solo los administradores pueden conectarse a %s.",
		KeyAllowConnectUsage: "Uso: /allowusersconnect on|off",
	},
}
