package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// contractABIJSON covers the subset of the ticketing contract the mirror uses.
const contractABIJSON = `[
  {"type":"function","name":"getEventDetails","stateMutability":"view",
   "inputs":[{"name":"eventId","type":"uint256"}],
   "outputs":[
     {"name":"name","type":"string"},
     {"name":"date","type":"string"},
     {"name":"venue","type":"string"},
     {"name":"ticketPrice","type":"uint256"},
     {"name":"totalSupply","type":"uint256"},
     {"name":"ticketsMinted","type":"uint256"},
     {"name":"maxResalePercent","type":"uint256"},
     {"name":"isActive","type":"bool"}]},
  {"type":"function","name":"tickets","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[
     {"name":"eventId","type":"uint256"},
     {"name":"seatNumber","type":"string"},
     {"name":"originalPrice","type":"uint256"},
     {"name":"isUsed","type":"bool"},
     {"name":"qrHash","type":"bytes32"},
     {"name":"transferCount","type":"uint256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"markTicketAsUsed","stateMutability":"nonpayable",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"qrHash","type":"bytes32"}],
   "outputs":[]},

  {"type":"event","name":"EventCreated","anonymous":false,"inputs":[
     {"name":"eventId","type":"uint256","indexed":true},
     {"name":"name","type":"string","indexed":false},
     {"name":"ticketPrice","type":"uint256","indexed":false},
     {"name":"totalSupply","type":"uint256","indexed":false}]},
  {"type":"event","name":"EventDeactivated","anonymous":false,"inputs":[
     {"name":"eventId","type":"uint256","indexed":true}]},
  {"type":"event","name":"TicketMinted","anonymous":false,"inputs":[
     {"name":"tokenId","type":"uint256","indexed":true},
     {"name":"eventId","type":"uint256","indexed":true},
     {"name":"buyer","type":"address","indexed":true},
     {"name":"qrHash","type":"bytes32","indexed":false}]},
  {"type":"event","name":"TicketListed","anonymous":false,"inputs":[
     {"name":"tokenId","type":"uint256","indexed":true},
     {"name":"seller","type":"address","indexed":true},
     {"name":"price","type":"uint256","indexed":false}]},
  {"type":"event","name":"ListingCancelled","anonymous":false,"inputs":[
     {"name":"tokenId","type":"uint256","indexed":true}]},
  {"type":"event","name":"TicketSold","anonymous":false,"inputs":[
     {"name":"tokenId","type":"uint256","indexed":true},
     {"name":"seller","type":"address","indexed":true},
     {"name":"buyer","type":"address","indexed":true},
     {"name":"price","type":"uint256","indexed":false},
     {"name":"fee","type":"uint256","indexed":false}]},
  {"type":"event","name":"TicketUsed","anonymous":false,"inputs":[
     {"name":"tokenId","type":"uint256","indexed":true}]},

  {"type":"error","name":"AlreadyUsed","inputs":[]},
  {"type":"error","name":"BadQRHash","inputs":[]},
  {"type":"error","name":"BadTokenId","inputs":[]},
  {"type":"error","name":"ERC721NonexistentToken","inputs":[{"name":"tokenId","type":"uint256"}]}
]`

var contractABI = mustParseABI(contractABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractABI returns the parsed contract interface, for tools building raw logs.
func ContractABI() abi.ABI {
	return contractABI
}
