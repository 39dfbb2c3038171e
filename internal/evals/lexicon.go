package evals

// afinn is a hand-picked subset (a few hundred words) of the ~3,400-word
// AFINN-165 list, biased toward weather and activity vocabulary; valence is
// -5 to 5. Words outside it score 0, so tone scores run closer to neutral
// than a full AFINN scorer would give.
var afinn = map[string]int{
	"abandon": -2, "abuse": -3, "accept": 1, "accident": -2, "ache": -2,
	"admire": 3, "adore": 3, "advantage": 2, "afraid": -2, "aggressive": -2,
	"agree": 1, "alarm": -2, "amazing": 4, "angry": -3, "annoy": -2,
	"annoyed": -2, "annoying": -2, "anxious": -2, "appreciate": 2, "awesome": 4,
	"awful": -3, "bad": -3, "beautiful": 3, "benefit": 2, "best": 3,
	"better": 2, "bitter": -2, "bless": 2, "blocked": -1, "bored": -2,
	"boring": -3, "breathtaking": 5, "bright": 1, "brilliant": 4, "broken": -1,
	"calm": 2, "care": 2, "careful": 2, "catastrophic": -4, "cheer": 2,
	"cheerful": 2, "clean": 2, "clear": 1, "cold": -1, "comfortable": 2,
	"cool": 1, "crash": -2, "crazy": -2, "crisis": -3, "cruel": -3,
	"cry": -1, "damage": -3, "danger": -2, "dangerous": -2, "dead": -3,
	"delay": -1, "delight": 3, "delighted": 3, "depressed": -2, "destroy": -3,
	"difficult": -1, "dirty": -2, "disappoint": -2, "disappointed": -2, "disaster": -2,
	"dislike": -2, "dreadful": -3, "dull": -2, "easy": 1, "enjoy": 2,
	"enjoyable": 2, "excellent": 3, "excited": 3, "exciting": 3, "fail": -2,
	"failed": -2, "failure": -2, "fair": 2, "fantastic": 4, "fear": -2,
	"fine": 2, "fresh": 1, "friendly": 2, "fun": 4, "gloomy": -2,
	"glad": 3, "good": 3, "gorgeous": 3, "great": 3, "grim": -2,
	"happy": 3, "harsh": -2, "hate": -3, "hazard": -2, "healthy": 2,
	"helpful": 2, "horrible": -3, "hurt": -2, "ideal": 2, "ill": -2,
	"impressive": 3, "interesting": 2, "joy": 3, "kind": 2, "lovely": 3,
	"love": 3, "lucky": 3, "mess": -2, "miserable": -3, "miss": -2,
	"nasty": -3, "nice": 3, "outstanding": 5, "pain": -2, "perfect": 3,
	"pleasant": 3, "pleased": 3, "poor": -2, "problem": -2, "recommend": 2,
	"relax": 2, "relaxing": 2, "risk": -2, "sad": -2, "safe": 1,
	"severe": -2, "sorry": -1, "storm": -2, "stormy": -2, "stress": -1,
	"strong": 2, "stuck": -2, "sunny": 2, "super": 3, "superb": 5,
	"terrible": -3, "thank": 2, "thanks": 2, "threat": -2, "tired": -2,
	"trouble": -2, "ugly": -3, "unfortunately": -2, "unhappy": -2, "unpleasant": -2,
	"unsafe": -2, "upset": -2, "useful": 2, "warm": 1, "warning": -3,
	"welcome": 2, "win": 4, "wonderful": 4, "worried": -3, "worry": -3,
	"worse": -3, "worst": -3, "wow": 4, "wrong": -2, "yes": 1,
}

// negators flip the valence of the word that follows them.
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "doesn't": true,
	"isn't": true, "wasn't": true, "aren't": true, "won't": true, "can't": true,
	"cannot": true, "shouldn't": true, "didn't": true,
}
