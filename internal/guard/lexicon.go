package guard

// emergencyPhrases signal self-harm risk. Matching is accent-insensitive.
var emergencyPhrases = []string{
	"me matar", "me suicidar", "quero morrer", "quero desaparecer",
	"não aguento mais viver", "não vejo saída", "me cortar", "automutilação",
	"suicídio", "desistir de tudo", "tirar minha vida", "acabar com tudo",
}

// abusivePhrases are insults aimed at the coach.
var abusivePhrases = []string{
	"idiota", "imbecil", "otário", "otária", "babaca", "vagabundo", "vagabunda",
	"filho da puta", "vai se foder", "vai tomar no cu", "cala a boca", "lixo de app",
}
