package auth

// Claims representa la identidad del actor extraída del token.
// ActorID es el mismo identificador que se registra como custodio de un lote.
type Claims struct {
	ActorID string
	Role    string // farmer, processor, tester, manufacturer, regulator, customer
	Email   string
}
