// Package dispatch shapes validated requests into contract calls. Every
// state change goes through a single web3.Session:
//
//	native transfer -> wallet.execute(target, value, "")
//	token transfer  -> wallet.executeERC20(token, target, amount)
//	limit update    -> rules.setLimit(agent, limit)
//	mint            -> identity.mint(recipient, uri)
//	fund            -> plain value transfer from the signing identity
package dispatch
